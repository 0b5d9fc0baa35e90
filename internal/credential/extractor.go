// Package credential normalizes the portal's opaque QR payload into a
// renderable boarding credential plus display-only rider identity.
package credential

import (
	"strings"

	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// Credential is the decoded boarding credential. Code is the string a
// front end renders as a QR image; Identity is display metadata only
// and never gates control flow.
type Credential struct {
	Code     string
	Identity models.RiderIdentity
}

// Decode extracts the credential from a raw QR payload. The portal
// joins rider name, rider id and department with CRLF inside the name
// field; absent lines simply leave the matching identity field empty.
func Decode(payload portal.QRPayload) (Credential, error) {
	if payload.Code == "" {
		return Credential{}, portal.ErrDecode
	}

	cred := Credential{Code: payload.Code}

	lines := strings.Split(strings.ReplaceAll(payload.Name, "\r\n", "\n"), "\n")
	if len(lines) > 0 {
		// The name line occasionally carries trailing annotations after
		// whitespace; only the first field is the rider's name.
		fields := strings.Fields(lines[0])
		if len(fields) > 0 {
			cred.Identity.Name = fields[0]
		}
	}
	if len(lines) > 1 {
		cred.Identity.RiderID = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		cred.Identity.Department = strings.TrimSpace(lines[2])
	}

	return cred, nil
}

// FromAppointment builds identity metadata from a reservation listing
// entry, which carries the same fields unbundled.
func FromAppointment(app portal.Appointment) models.RiderIdentity {
	return models.RiderIdentity{
		Name:       strings.TrimSpace(app.CreatorName),
		RiderID:    strings.TrimSpace(app.Number),
		Department: strings.TrimSpace(app.CreatorDepart),
	}
}
