package register

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifetimebot/internal/lifetime"
)

// stubRegistrar scripts the two protocol steps per call number.
type stubRegistrar struct {
	initiateCalls int
	completeCalls int
	initiate      func(call int) (*lifetime.InitiateResult, error)
	complete      func(call int) (*lifetime.CompleteResult, error)
}

func (s *stubRegistrar) InitiateRegistration(ctx context.Context, sess lifetime.Session, eventID string, memberIDs []int) (*lifetime.InitiateResult, error) {
	s.initiateCalls++
	return s.initiate(s.initiateCalls)
}

func (s *stubRegistrar) CompleteRegistration(ctx context.Context, sess lifetime.Session, regID string, memberIDs []int, agreementID string) (*lifetime.CompleteResult, error) {
	s.completeCalls++
	if s.complete == nil {
		return &lifetime.CompleteResult{HTTPStatus: http.StatusOK}, nil
	}
	return s.complete(s.completeCalls)
}

var testSession = lifetime.Session{JWE: "jwe", SSOID: "sso"}

func okInitiate() *lifetime.InitiateResult {
	return &lifetime.InitiateResult{HTTPStatus: http.StatusOK, RegID: "reg-1", AgreementID: "77"}
}

func fatalInitiate(rule string, code int, msg string) *lifetime.InitiateResult {
	return &lifetime.InitiateResult{
		HTTPStatus: http.StatusBadRequest,
		Validation: &lifetime.Validation{
			IsFatal:      true,
			Notification: msg,
			Rules:        map[string]lifetime.ValidationRule{rule: {ErrorCode: code}},
		},
	}
}

func TestAttemptSucceedsFirstTry(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(int) (*lifetime.InitiateResult, error) { return okInitiate(), nil },
	}
	a := New(reg, 5, 0, nil)

	outcome, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, reg.initiateCalls)
	assert.Equal(t, 1, reg.completeCalls)
}

func TestAttemptTerminalRejectionShortCircuits(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(int) (*lifetime.InitiateResult, error) {
			return fatalInitiate("capacityRule", 12, "Class is full"), nil
		},
	}
	a := New(reg, 5, 0, nil)

	outcome, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.NoError(t, err)
	assert.Equal(t, StatusIneligible, outcome.Status)
	assert.Equal(t, ReasonClassFull, outcome.Reason)
	assert.Equal(t, "Class is full", outcome.Detail)
	// A rejection that cannot succeed burns exactly one attempt.
	assert.Equal(t, 1, reg.initiateCalls)
	assert.Equal(t, 0, reg.completeCalls)
}

func TestAttemptRetriesTransientUpToBudget(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(int) (*lifetime.InitiateResult, error) {
			return &lifetime.InitiateResult{HTTPStatus: http.StatusInternalServerError}, nil
		},
	}
	a := New(reg, 5, 0, nil)

	outcome, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.NoError(t, err)
	assert.Equal(t, StatusFailedAfterRetries, outcome.Status)
	assert.Equal(t, 5, outcome.Attempts)
	// The attempt budget is the exact number of initiate calls.
	assert.Equal(t, 5, reg.initiateCalls)
}

func TestAttemptTransientThenSuccess(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(call int) (*lifetime.InitiateResult, error) {
			if call < 3 {
				return &lifetime.InitiateResult{HTTPStatus: http.StatusBadGateway}, nil
			}
			return okInitiate(), nil
		},
	}
	a := New(reg, 5, 0, nil)

	outcome, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestAttemptCompleteFailureIsTransient(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(int) (*lifetime.InitiateResult, error) { return okInitiate(), nil },
		complete: func(call int) (*lifetime.CompleteResult, error) {
			if call == 1 {
				return &lifetime.CompleteResult{HTTPStatus: http.StatusConflict, Body: "try again"}, nil
			}
			return &lifetime.CompleteResult{HTTPStatus: http.StatusOK}, nil
		},
	}
	a := New(reg, 5, 0, nil)

	outcome, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, reg.completeCalls)
}

func TestAttemptNetworkErrorIsTransient(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(call int) (*lifetime.InitiateResult, error) {
			if call == 1 {
				return nil, errors.New("connection reset")
			}
			return okInitiate(), nil
		},
	}
	a := New(reg, 5, 0, nil)

	outcome, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestAttemptUnauthorizedSurfacesToCaller(t *testing.T) {
	reg := &stubRegistrar{
		initiate: func(int) (*lifetime.InitiateResult, error) { return nil, lifetime.ErrUnauthorized },
	}
	a := New(reg, 5, 0, nil)

	_, err := a.Attempt(context.Background(), testSession, "ev1", []int{101})

	require.Error(t, err)
	assert.ErrorIs(t, err, lifetime.ErrUnauthorized)
	assert.Equal(t, 1, reg.initiateCalls)
}

func TestClassifyValidation(t *testing.T) {
	tests := []struct {
		name       string
		rule       string
		code       int
		wantReason Reason
	}{
		{"too soon", "tooSoonRule", lifetime.TooSoonErrorCode, ReasonTooSoon},
		{"too soon rule with other code", "tooSoonRule", 7, ReasonRejected},
		{"already registered", "alreadyRegisteredRule", 3, ReasonAlreadyRegistered},
		{"duplicate", "duplicateRegistrationRule", 9, ReasonAlreadyRegistered},
		{"conflict", "conflictRule", 2, ReasonAlreadyRegistered},
		{"capacity", "capacityRule", 12, ReasonClassFull},
		{"unknown rule", "mysteryRule", 99, ReasonRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &lifetime.Validation{
				IsFatal:      true,
				Notification: "nope",
				Rules:        map[string]lifetime.ValidationRule{tt.rule: {ErrorCode: tt.code}},
			}
			reason, detail := classifyValidation(v)
			assert.Equal(t, tt.wantReason, reason)
			assert.Equal(t, "nope", detail)
		})
	}

	t.Run("too soon wins over other tripped rules", func(t *testing.T) {
		// A verdict can trip several rules at once. Too-soon must always
		// win, whatever order the rules map yields, because it is the one
		// reason the scheduler re-attempts later instead of marking the
		// activity processed.
		v := &lifetime.Validation{
			IsFatal:      true,
			Notification: "Registration is not open yet",
			Rules: map[string]lifetime.ValidationRule{
				"tooSoonRule":  {ErrorCode: lifetime.TooSoonErrorCode},
				"conflictRule": {ErrorCode: 2},
			},
		}
		for i := 0; i < 200; i++ {
			reason, _ := classifyValidation(v)
			require.Equal(t, ReasonTooSoon, reason)
		}
	})

	t.Run("multiple non-too-soon rules classify deterministically", func(t *testing.T) {
		v := &lifetime.Validation{
			IsFatal: true,
			Rules: map[string]lifetime.ValidationRule{
				"capacityRule": {ErrorCode: 12},
				"conflictRule": {ErrorCode: 2},
			},
		}
		for i := 0; i < 200; i++ {
			reason, _ := classifyValidation(v)
			require.Equal(t, ReasonAlreadyRegistered, reason)
		}
	})

	t.Run("zero error codes ignored", func(t *testing.T) {
		v := &lifetime.Validation{
			IsFatal: true,
			Rules: map[string]lifetime.ValidationRule{
				"tooSoonRule":  {ErrorCode: 0},
				"capacityRule": {ErrorCode: 12},
			},
		}
		reason, detail := classifyValidation(v)
		assert.Equal(t, ReasonClassFull, reason)
		assert.Equal(t, "registration rejected by validation rules", detail)
	})
}
