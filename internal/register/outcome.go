// Package register drives the two-step registration protocol for one event
// and classifies the result. It owns no side effects beyond the API calls:
// persistence and notification belong to the caller.
package register

import (
	"fmt"

	"lifetimebot/internal/lifetime"
)

// Status is the terminal classification of a registration attempt cycle.
type Status string

const (
	StatusSucceeded          Status = "succeeded"
	StatusFailedAfterRetries Status = "failed_after_retries"
	StatusIneligible         Status = "ineligible"
)

// Reason says why an attempt was ineligible. Terminal business rejections are
// never retried: they waste quota and cannot succeed.
type Reason string

const (
	// ReasonTooSoon means the server says registration has not opened yet,
	// despite the local window calculation. The scheduler re-evaluates the
	// activity on a later tick rather than burning retries now.
	ReasonTooSoon Reason = "too_soon"

	// ReasonAlreadyRegistered covers duplicate and conflicting bookings.
	ReasonAlreadyRegistered Reason = "already_registered"

	// ReasonClassFull means the class reached capacity.
	ReasonClassFull Reason = "class_full"

	// ReasonRejected is any other fatal validation verdict.
	ReasonRejected Reason = "rejected"
)

// Outcome is the result of one full attempt cycle for one activity.
type Outcome struct {
	Status   Status
	Reason   Reason // set when Status is StatusIneligible
	Detail   string // last human-readable message, often the API notification
	Attempts int    // initiate calls made
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	if o.Status == StatusIneligible {
		return fmt.Sprintf("%s (%s) after %d attempt(s): %s", o.Status, o.Reason, o.Attempts, o.Detail)
	}
	return fmt.Sprintf("%s after %d attempt(s): %s", o.Status, o.Attempts, o.Detail)
}

// fatalRulePrecedence fixes the order rule names are examined in, so a
// verdict carrying several tripped rules always classifies the same way.
var fatalRulePrecedence = []struct {
	name   string
	reason Reason
}{
	{"alreadyRegisteredRule", ReasonAlreadyRegistered},
	{"duplicateRegistrationRule", ReasonAlreadyRegistered},
	{"conflictRule", ReasonAlreadyRegistered},
	{"capacityRule", ReasonClassFull},
	{"classFullRule", ReasonClassFull},
}

// classifyValidation maps a fatal validation verdict onto a structured
// reason. The rule names come from the registration API's validation block;
// anything unrecognized stays a generic rejection with the API's own
// notification text carried along.
//
// tooSoonRule is checked before everything else: too-soon is the one verdict
// the scheduler leaves unprocessed for a later re-attempt, so it must win
// whenever the API trips it alongside other rules.
func classifyValidation(v *lifetime.Validation) (Reason, string) {
	detail := v.Notification
	if detail == "" {
		detail = "registration rejected by validation rules"
	}

	if rule, ok := v.Rules["tooSoonRule"]; ok && rule.ErrorCode == lifetime.TooSoonErrorCode {
		return ReasonTooSoon, detail
	}
	for _, p := range fatalRulePrecedence {
		if rule, ok := v.Rules[p.name]; ok && rule.ErrorCode != 0 {
			return p.reason, detail
		}
	}
	return ReasonRejected, detail
}
