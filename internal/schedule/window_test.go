package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistrationOpens(t *testing.T) {
	start := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	lead := 11400 * time.Minute // 7 days 22 hours

	opens := RegistrationOpens(start, lead)

	assert.Equal(t, time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC), opens)
}

func TestRegistrationOpensDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	lead := 48 * time.Hour

	first := RegistrationOpens(start, lead)
	second := RegistrationOpens(start, lead)

	assert.Equal(t, first, second)
	assert.Equal(t, lead, start.Sub(first))
}

func TestRegistrationOpensZeroLead(t *testing.T) {
	start := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, start, RegistrationOpens(start, 0))
}
