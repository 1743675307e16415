package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifetimebot/internal/lifetime"
)

func defaultRules() RuleSet {
	return RuleSet{
		IncludeTerms:        []string{"intermediate"},
		ExcludeTerms:        []string{"advanced", "singles"},
		WeekendDays:         []string{"saturday", "sunday"},
		AllowedWeekdayParts: []string{"Evening"},
	}
}

// mustSchedule builds a raw schedule from JSON the way the API delivers it,
// exercising the real decoding path.
func mustSchedule(t *testing.T, raw string) *lifetime.Schedule {
	t.Helper()
	var s lifetime.Schedule
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return &s
}

func TestFilterNameRules(t *testing.T) {
	// 2026-01-05 is a Monday; Evening passes the weekday day-part rule.
	raw := mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[{"name":"Evening","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
		{"id":"a1","name":"Pickleball Open Play: Intermediate","isPaidClass":false},
		{"id":"a2","name":"Pickleball Open Play: Advanced Intermediate","isPaidClass":false},
		{"id":"a3","name":"Pickleball Open Play: Beginner","isPaidClass":false},
		{"id":"a4","name":"INTERMEDIATE Singles Night","isPaidClass":false}
	]}]}]}]}`)

	got := Filter(raw, defaultRules())

	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}

func TestFilterCaseInsensitive(t *testing.T) {
	raw := mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[{"name":"EVENING","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
		{"id":"a1","name":"pickleball open play: INTERMEDIATE","isPaidClass":false}
	]}]}]}]}`)

	got := Filter(raw, defaultRules())
	require.Len(t, got, 1)
}

func TestFilterWeekendBypassesDayPart(t *testing.T) {
	// 2026-01-10 is a Saturday: Morning is fine there, not on Monday.
	raw := mustSchedule(t, `{"results":[
		{"day":"2026-01-10","dayParts":[{"name":"Morning","startTimes":[{"time":"9:00 AM","timestamp":1768035600000,"activities":[
			{"id":"sat","name":"Intermediate Open Play","isPaidClass":false}
		]}]}]},
		{"day":"2026-01-05","dayParts":[{"name":"Morning","startTimes":[{"time":"9:00 AM","timestamp":1767603600000,"activities":[
			{"id":"mon","name":"Intermediate Open Play","isPaidClass":false}
		]}]}]}
	]}`)

	got := Filter(raw, defaultRules())

	require.Len(t, got, 1)
	assert.Equal(t, "sat", got[0].ID)
	assert.Equal(t, "Saturday", got[0].DayOfWeek)
}

func TestFilterPaidClasses(t *testing.T) {
	t.Run("paid class excluded", func(t *testing.T) {
		raw := mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[{"name":"Evening","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
			{"id":"a1","name":"Intermediate Clinic","isPaidClass":true}
		]}]}]}]}`)
		assert.Empty(t, Filter(raw, defaultRules()))
	})

	t.Run("unknown cost excluded", func(t *testing.T) {
		raw := mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[{"name":"Evening","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
			{"id":"a1","name":"Intermediate Open Play"}
		]}]}]}]}`)
		assert.Empty(t, Filter(raw, defaultRules()))
	})
}

func TestFilterEmptyIncludeMatchesAll(t *testing.T) {
	rules := defaultRules()
	rules.IncludeTerms = nil

	raw := mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[{"name":"Evening","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
		{"id":"a1","name":"Beginner Open Play","isPaidClass":false}
	]}]}]}]}`)

	assert.Len(t, Filter(raw, rules), 1)
}

func TestFilterMalformedDateIsolated(t *testing.T) {
	// The bad-date entry degrades to UnknownDay (failing the weekday rule for
	// a Morning slot) without dropping the well-formed Saturday entry.
	raw := mustSchedule(t, `{"results":[
		{"day":"not-a-date","dayParts":[{"name":"Morning","startTimes":[{"time":"9:00 AM","timestamp":1768035600000,"activities":[
			{"id":"bad","name":"Intermediate Open Play","isPaidClass":false}
		]}]}]},
		{"day":"2026-01-10","dayParts":[{"name":"Morning","startTimes":[{"time":"9:00 AM","timestamp":1768035600000,"activities":[
			{"id":"good","name":"Intermediate Open Play","isPaidClass":false}
		]}]}]}
	]}`)

	got := Filter(raw, defaultRules())
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].ID)
}

func TestFilterMalformedDateStillMatchesOnDayPart(t *testing.T) {
	// A bad date is not an automatic rejection: an Evening slot passes the
	// weekday day-part rule regardless of the unknown weekday.
	raw := mustSchedule(t, `{"results":[{"day":"garbage","dayParts":[{"name":"Evening","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
		{"id":"a1","name":"Intermediate Open Play","isPaidClass":false}
	]}]}]}]}`)

	got := Filter(raw, defaultRules())
	require.Len(t, got, 1)
	assert.Equal(t, UnknownDay, got[0].DayOfWeek)
}

func TestFilterRetainsAndDropsByTerms(t *testing.T) {
	rules := RuleSet{
		IncludeTerms: []string{"pickleball"},
		ExcludeTerms: []string{"beginner"},
		WeekendDays:  []string{"saturday", "sunday"},
	}

	// 2026-01-10 is a Saturday.
	raw := mustSchedule(t, `{"results":[{"day":"2026-01-10","dayParts":[{"name":"Morning","startTimes":[{"time":"9:00 AM","timestamp":1768035600000,"activities":[
		{"id":"adv","name":"Pickleball Open Play - Advanced","isPaidClass":false},
		{"id":"beg","name":"Pickleball Open Play - Beginner","isPaidClass":false}
	]}]}]}]}`)

	got := Filter(raw, rules)

	require.Len(t, got, 1)
	assert.Equal(t, "adv", got[0].ID)
}

func TestFilterEmptyPayloads(t *testing.T) {
	assert.Empty(t, Filter(nil, defaultRules()))
	assert.Empty(t, Filter(&lifetime.Schedule{}, defaultRules()))
	assert.Empty(t, Filter(mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[]}]}`), defaultRules()))
}

func TestFilterFlattensTimestamps(t *testing.T) {
	raw := mustSchedule(t, `{"results":[{"day":"2026-01-05","dayParts":[{"name":"Evening","startTimes":[{"time":"6:00 PM","timestamp":1767636000000,"activities":[
		{"id":"a1","name":"Intermediate Open Play","isPaidClass":false,"isRegistrable":true,"endTime":"8:00 PM","duration":120,"location":"Pickleball Courts"}
	]}]}]}]}`)

	got := Filter(raw, defaultRules())
	require.Len(t, got, 1)

	a := got[0]
	assert.Equal(t, time.UnixMilli(1767636000000).UTC(), a.StartsAt)
	assert.Equal(t, "6:00 PM", a.StartTime)
	assert.Equal(t, "120", a.Duration)
	assert.Equal(t, "Pickleball Courts", a.Location)
	assert.True(t, a.Registerable)
	assert.False(t, a.Paid)
}
