// Package schedule holds the class schedule domain: the normalized Activity
// model, the static filter rules, and the registration window math.
package schedule

import "time"

// UnknownDay is the sentinel day-of-week used when a schedule entry carries a
// malformed or missing date. Such entries still flow through the filter (they
// can pass on day-part grounds) instead of aborting the batch.
const UnknownDay = "N/A"

// Activity is one bookable class instance, flattened from the raw schedule
// payload. Immutable within a refresh cycle; a later refresh may produce a
// different value for the same ID, so ID is the identity and everything else
// is re-derived from the latest fetch.
type Activity struct {
	ID           string    `json:"id"`
	ClassName    string    `json:"class_name"`
	Date         string    `json:"date"`        // YYYY-MM-DD as reported
	DayOfWeek    string    `json:"day_of_week"` // derived; UnknownDay on bad dates
	DayPart      string    `json:"day_part"`
	StartTime    string    `json:"start_time"` // local display time
	StartsAt     time.Time `json:"start_timestamp"`
	EndTime      string    `json:"end_time"`
	EndsAt       time.Time `json:"end_timestamp"`
	Duration     string    `json:"duration"`
	Location     string    `json:"location"`
	Paid         bool      `json:"is_paid"`
	Registerable bool      `json:"is_registerable"`
	CTA          string    `json:"cta"`
}

// RegistrationOpens returns the instant registration opens for a class
// starting at startsAt: exactly lead before the start. Pure; the caller is
// responsible for rejecting activities with a zero start instant.
func RegistrationOpens(startsAt time.Time, lead time.Duration) time.Time {
	return startsAt.Add(-lead)
}
