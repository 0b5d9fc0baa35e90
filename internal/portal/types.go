package portal

import (
	"encoding/json"

	"github.com/shuttle-pass/backend/internal/storage/models"
)

// envelope is the portal's standard response wrapper. e is zero on
// success; m carries the rejection reason otherwise.
type envelope struct {
	E int             `json:"e"`
	M string          `json:"m"`
	D json.RawMessage `json:"d"`
}

// loginResponse comes from the identity provider, not the portal, and
// does not use the envelope.
type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type resourceList struct {
	List []resourceWire `json:"list"`
}

// resourceWire mirrors the list-page entry. The table field is an
// object with exactly one key whose name is an implementation detail of
// the portal; only the single slot list inside it matters.
type resourceWire struct {
	ID    int                   `json:"id"`
	Name  string                `json:"name"`
	Table map[string][]slotWire `json:"table"`
}

type slotWire struct {
	TimeID int    `json:"time_id"`
	Date   string `json:"date"`
	Yaxis  string `json:"yaxis"`
	Row    struct {
		Margin int `json:"margin"`
	} `json:"row"`
}

// toResource flattens the single-key table into a models.Resource. An
// empty or multi-key table is a shape error.
func (w resourceWire) toResource() (models.Resource, error) {
	if len(w.Table) != 1 {
		return models.Resource{}, decodeError("resource table must contain exactly one slot list", nil)
	}

	res := models.Resource{ID: w.ID, Name: w.Name}
	for _, slots := range w.Table {
		for _, s := range slots {
			res.Slots = append(res.Slots, models.TimeSlot{
				SlotID:    s.TimeID,
				Date:      s.Date,
				StartTime: s.Yaxis,
				Margin:    s.Row.Margin,
			})
		}
	}
	return res, nil
}

// Appointment is one entry from the my-list-time endpoint. The portal
// truncates the appointment_time key; that spelling must be preserved.
type Appointment struct {
	ID              int    `json:"id"`
	ResourceID      int    `json:"resource_id"`
	ResourceName    string `json:"resource_name"`
	AppointmentTime string `json:"appointment_tim"`
	DataID          int    `json:"hall_appointment_data_id"`
	StatusName      string `json:"status_name"`
	CreatorName     string `json:"creator_name"`
	CreatorDepart   string `json:"creator_depart"`
	Number          string `json:"number"`
}

type appointmentList struct {
	Data []Appointment `json:"data"`
}

// QRPayload is the raw get-sign-qrcode response body: the credential
// string plus a CRLF-joined identity blob.
type QRPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
