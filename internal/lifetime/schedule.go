package lifetime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// --------------------------------------------------------------------------
// Raw schedule payload — mirrors the web-schedules v2 response nesting:
// results (days) → dayParts → startTimes → activities.
// --------------------------------------------------------------------------

// Schedule is the raw schedule payload for a date range.
type Schedule struct {
	Results []ScheduleDay `json:"results"`
}

// ScheduleDay groups activities for one calendar day.
type ScheduleDay struct {
	Day      string    `json:"day"` // YYYY-MM-DD
	DayParts []DayPart `json:"dayParts"`
}

// DayPart is a labeled part of the day (Morning, Afternoon, Evening).
type DayPart struct {
	Name       string      `json:"name"`
	StartTimes []StartTime `json:"startTimes"`
}

// StartTime is one time slot within a day part.
type StartTime struct {
	Time       string             `json:"time"`      // local display time, e.g. "6:00 PM"
	Timestamp  epochMillis        `json:"timestamp"` // absolute start instant
	Activities []ScheduleActivity `json:"activities"`
}

// ScheduleActivity is one class instance as the API reports it.
type ScheduleActivity struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	EndTime       string      `json:"endTime"`
	EndTimestamp  epochMillis `json:"endTimestamp"`
	Duration      flexString  `json:"duration"`
	CTA           string      `json:"cta"`
	IsPaidClass   *bool       `json:"isPaidClass"`
	IsRegistrable *bool       `json:"isRegistrable"`
	Location      string      `json:"location"`
}

// StartsAt returns the slot timestamp as a UTC instant (zero when absent).
func (s StartTime) StartsAt() time.Time { return s.Timestamp.Time() }

// EndsAt returns the activity end instant (zero when absent).
func (a ScheduleActivity) EndsAt() time.Time { return a.EndTimestamp.Time() }

// --------------------------------------------------------------------------
// Fetch
// --------------------------------------------------------------------------

// ScheduleQuery selects what FetchSchedule asks the API for.
type ScheduleQuery struct {
	Start    time.Time // first day of the range
	Days     int       // number of days, inclusive of Start
	Interest string    // interest tag, e.g. "Pickleball Open Play"
	Club     string    // club location name, e.g. "Denver West"
}

// apiDate formats a date the way the schedule endpoint expects (M/DD/YYYY).
func apiDate(t time.Time) string {
	return fmt.Sprintf("%d/%02d/%d", int(t.Month()), t.Day(), t.Year())
}

// FetchSchedule retrieves the raw class schedule for the query range.
// Requires a valid session; returns ErrUnauthorized when the tokens have
// expired.
func (c *Client) FetchSchedule(ctx context.Context, sess Session, q ScheduleQuery) (*Schedule, error) {
	if !sess.Valid() {
		return nil, ErrUnauthorized
	}
	if q.Days < 1 {
		q.Days = 1
	}
	end := q.Start.AddDate(0, 0, q.Days-1)

	params := url.Values{}
	params.Set("start", apiDate(q.Start))
	params.Set("end", apiDate(end))
	if q.Interest != "" {
		params.Add("tags", "interest:"+q.Interest)
	}
	params.Add("tags", "format:Class")
	if q.Club != "" {
		params.Set("locations", q.Club)
	}
	params.Set("isFree", "false")
	params.Set("page", "1")
	params.Set("pageSize", "750")

	u := c.baseURL + schedulePath + "?" + params.Encode()
	c.logger.Debug("Fetching schedule", "start", apiDate(q.Start), "end", apiDate(end))

	status, body, err := c.doJSON(ctx, http.MethodGet, u, sess, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("schedule fetch returned %d: %s", status, truncate(body, 200))
	}

	var sched Schedule
	if err := json.Unmarshal(body, &sched); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &sched, nil
}
