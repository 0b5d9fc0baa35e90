package models

// RideHistoryEntry is one past (or upcoming) ride from the portal's
// my-list-time endpoint. Entries are merged by ID across overlapping
// fetches, so repeated fetches never duplicate a ride.
type RideHistoryEntry struct {
	ID              int    `json:"id"`
	StatusName      string `json:"status_name"`
	RouteName       string `json:"route_name"`
	AppointmentTime string `json:"appointment_time"` // "YYYY-MM-DD HH:MM[:SS]"
}

// Ride status reported by the portal for entries that were cancelled by
// the rider. These are dropped at fetch time and never stored.
const RideStatusRevoked = "已撤销"

// RiderIdentity is the display metadata the portal attaches to QR code
// and reservation responses. It is only ever used to render the pass,
// never to gate control flow.
type RiderIdentity struct {
	Name       string `json:"name"`
	RiderID    string `json:"rider_id"`
	Department string `json:"department"`
}
