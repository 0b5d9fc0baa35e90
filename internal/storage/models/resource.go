package models

// Resource is one shuttle route as reported by the reservation portal,
// with its time slots for the requested day already flattened out of the
// portal's single-key table wrapper.
type Resource struct {
	ID    int        `json:"id"`
	Name  string     `json:"name"`
	Slots []TimeSlot `json:"slots"`
}

// TimeSlot is a single departure on a route. Margin is the remaining
// bookable capacity; a slot with margin 0 is full and never a candidate.
type TimeSlot struct {
	SlotID    int    `json:"time_id"`
	Date      string `json:"date"`       // YYYY-MM-DD
	StartTime string `json:"start_time"` // HH:MM
	Margin    int    `json:"margin"`
}

// DatedResources is a day's schedule together with the date it was
// fetched for. The cache is only valid while that date is still "today"
// in the service time zone.
type DatedResources struct {
	Date      string     `json:"date"`
	Resources []Resource `json:"resources"`
}
