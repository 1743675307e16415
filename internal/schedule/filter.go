package schedule

import (
	"strings"
	"time"

	"lifetimebot/internal/lifetime"
)

// RuleSet is the static inclusion/exclusion configuration for the filter.
// All term and day matching is case-insensitive.
type RuleSet struct {
	IncludeTerms        []string // empty = match all class names
	ExcludeTerms        []string // any match disqualifies
	WeekendDays         []string // weekday names where day parts are unrestricted
	AllowedWeekdayParts []string // day parts permitted on non-weekend days
}

// matchesName applies the include/exclude term rules to a class name.
func (r RuleSet) matchesName(name string) bool {
	lower := strings.ToLower(name)

	included := len(r.IncludeTerms) == 0
	for _, term := range r.IncludeTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, term := range r.ExcludeTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// matchesDay applies the weekend/day-part rule: weekend days allow any day
// part, weekdays only the allowed set.
func (r RuleSet) matchesDay(dayOfWeek, dayPart string) bool {
	for _, d := range r.WeekendDays {
		if strings.EqualFold(d, dayOfWeek) {
			return true
		}
	}
	for _, p := range r.AllowedWeekdayParts {
		if strings.EqualFold(p, dayPart) {
			return true
		}
	}
	return false
}

// Filter flattens a raw schedule payload into the ordered activities that
// pass the rule set. Pure: no side effects, nil or empty payloads yield an
// empty slice. One malformed entry never drops the rest of the batch; bad
// dates degrade to UnknownDay, absent timestamps leave StartsAt zero for the
// caller to skip.
//
// An activity passes iff its name matches the include/exclude terms, its day
// passes the weekend/day-part rule, and it is known to be unpaid. An absent
// isPaidClass field fails the filter: a class of unknown cost is never
// silently registered for.
func Filter(raw *lifetime.Schedule, rules RuleSet) []Activity {
	if raw == nil {
		return []Activity{}
	}

	activities := []Activity{}
	for _, day := range raw.Results {
		dayOfWeek := UnknownDay
		if t, err := time.Parse("2006-01-02", day.Day); err == nil {
			dayOfWeek = t.Weekday().String()
		}

		for _, part := range day.DayParts {
			for _, slot := range part.StartTimes {
				for _, act := range slot.Activities {
					if !rules.matchesName(act.Name) {
						continue
					}
					if !rules.matchesDay(dayOfWeek, part.Name) {
						continue
					}
					if act.IsPaidClass == nil || *act.IsPaidClass {
						continue
					}

					registerable := act.IsRegistrable != nil && *act.IsRegistrable
					activities = append(activities, Activity{
						ID:           act.ID,
						ClassName:    act.Name,
						Date:         day.Day,
						DayOfWeek:    dayOfWeek,
						DayPart:      part.Name,
						StartTime:    slot.Time,
						StartsAt:     slot.StartsAt(),
						EndTime:      act.EndTime,
						EndsAt:       act.EndsAt(),
						Duration:     act.Duration.String(),
						Location:     act.Location,
						Paid:         false,
						Registerable: registerable,
						CTA:          act.CTA,
					})
				}
			}
		}
	}
	return activities
}
