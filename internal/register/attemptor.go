package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lifetimebot/internal/lifetime"
)

// Registrar is the slice of the API client the attemptor needs.
type Registrar interface {
	InitiateRegistration(ctx context.Context, sess lifetime.Session, eventID string, memberIDs []int) (*lifetime.InitiateResult, error)
	CompleteRegistration(ctx context.Context, sess lifetime.Session, regID string, memberIDs []int, agreementID string) (*lifetime.CompleteResult, error)
}

// Attemptor runs a bounded-retry registration cycle for one activity.
type Attemptor struct {
	registrar   Registrar
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// New creates an attemptor. maxAttempts is the total initiate-call budget per
// cycle; backoff is the delay between transient failures.
func New(registrar Registrar, maxAttempts int, backoff time.Duration, logger *slog.Logger) *Attemptor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Attemptor{
		registrar:   registrar,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
	}
}

// Attempt drives initiate → complete for the event, retrying transient
// failures up to the attempt budget and short-circuiting on terminal
// rejections. The only error it returns is lifetime.ErrUnauthorized (or a
// cancelled context), which the caller handles by re-authenticating; every
// other result is expressed in the Outcome.
func (a *Attemptor) Attempt(ctx context.Context, sess lifetime.Session, eventID string, memberIDs []int) (Outcome, error) {
	var lastDetail string

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		a.logger.Info("Registration attempt", "event_id", eventID, "attempt", attempt, "max", a.maxAttempts)

		outcome, detail, err := a.attemptOnce(ctx, sess, eventID, memberIDs)
		if err != nil {
			if errors.Is(err, lifetime.ErrUnauthorized) || ctx.Err() != nil {
				return Outcome{}, err
			}
			// Network-level failure: transient.
			detail = err.Error()
		}
		if outcome != nil {
			outcome.Attempts = attempt
			return *outcome, nil
		}
		lastDetail = detail

		a.logger.Warn("Attempt failed, will retry", "event_id", eventID, "attempt", attempt, "detail", detail)
		if attempt < a.maxAttempts {
			if err := a.wait(ctx); err != nil {
				return Outcome{}, err
			}
		}
	}

	return Outcome{
		Status:   StatusFailedAfterRetries,
		Detail:   lastDetail,
		Attempts: a.maxAttempts,
	}, nil
}

// attemptOnce runs one initiate → complete pass. A nil outcome with no error
// (or with a transport error) means transient failure: the caller retries.
func (a *Attemptor) attemptOnce(ctx context.Context, sess lifetime.Session, eventID string, memberIDs []int) (*Outcome, string, error) {
	initiate, err := a.registrar.InitiateRegistration(ctx, sess, eventID, memberIDs)
	if err != nil {
		return nil, "", err
	}

	// Terminal business rejection: classify, never retry.
	if initiate.Validation != nil && initiate.Validation.IsFatal {
		reason, detail := classifyValidation(initiate.Validation)
		return &Outcome{Status: StatusIneligible, Reason: reason, Detail: detail}, "", nil
	}

	if !initiate.Ready() {
		return nil, fmt.Sprintf("initiate step incomplete (status %d, regId %q, agreementId %q)",
			initiate.HTTPStatus, initiate.RegID, initiate.AgreementID), nil
	}

	a.logger.Info("Initiate step succeeded", "event_id", eventID, "reg_id", initiate.RegID)

	complete, err := a.registrar.CompleteRegistration(ctx, sess, initiate.RegID, memberIDs, initiate.AgreementID)
	if err != nil {
		return nil, "", err
	}
	if !complete.Completed() {
		return nil, fmt.Sprintf("complete step returned %d: %s", complete.HTTPStatus, complete.Body), nil
	}

	return &Outcome{
		Status: StatusSucceeded,
		Detail: fmt.Sprintf("registration completed (reg_id %s)", initiate.RegID),
	}, "", nil
}

// wait sleeps for the backoff delay, honoring context cancellation.
func (a *Attemptor) wait(ctx context.Context) error {
	if a.backoff <= 0 {
		return nil
	}
	timer := time.NewTimer(a.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
