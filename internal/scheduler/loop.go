// Package scheduler runs the registration-window control loop: it keeps a
// filtered activity set fresh on a slow cadence, polls registration windows
// on a fast cadence, and drives attempts, persistence, and notifications for
// each activity exactly once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lifetimebot/internal/lifetime"
	"lifetimebot/internal/notify"
	"lifetimebot/internal/register"
	"lifetimebot/internal/schedule"
	"lifetimebot/internal/store"
)

// --------------------------------------------------------------------------
// Collaborator interfaces — the slices of the API client and attemptor the
// loop needs, kept small so tests can stub them.
// --------------------------------------------------------------------------

// Fetcher supplies sessions and raw schedules.
type Fetcher interface {
	Login(ctx context.Context) (lifetime.Session, error)
	FetchSchedule(ctx context.Context, sess lifetime.Session, q lifetime.ScheduleQuery) (*lifetime.Schedule, error)
}

// Attemptor runs one bounded registration cycle for an event.
type Attemptor interface {
	Attempt(ctx context.Context, sess lifetime.Session, eventID string, memberIDs []int) (register.Outcome, error)
}

// DigestSender posts a summary of a fresh schedule fetch.
type DigestSender interface {
	SendScheduleDigest(ctx context.Context, activities []schedule.Activity, lead time.Duration) error
}

// --------------------------------------------------------------------------
// Loop state
// --------------------------------------------------------------------------

// State tracks where the loop is in its session/schedule lifecycle.
type State string

const (
	StateIdle           State = "idle"            // no valid session
	StateAuthenticated  State = "authenticated"   // logged in, no schedule yet
	StateScheduleLoaded State = "schedule_loaded" // schedule fetched this cycle
	StatePolling        State = "polling"         // steady state
)

// Config holds the loop's static settings.
type Config struct {
	Rules             schedule.RuleSet
	MemberIDs         []int
	LeadTime          time.Duration
	RefreshInterval   time.Duration
	PollInterval      time.Duration
	FetchOffsetDays   int
	FetchDurationDays int
	Interest          string
	Club              string
	SnapshotFile      string // empty disables snapshot writing
	SingleCycle       bool   // one refresh + one poll pass, then exit
}

// Deps holds the loop's collaborators. Notifier and Digest may be nil.
type Deps struct {
	Fetcher   Fetcher
	Attemptor Attemptor
	Store     *store.Store
	Notifier  notify.Notifier
	Digest    DigestSender
}

// Loop owns the in-memory activity set and the processed-event store handle
// for the life of the process. All scheduling decisions happen on the
// goroutine running Run; the mutex only guards reads from the status API.
type Loop struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	activities  []schedule.Activity
	sess        lifetime.Session
	state       State
	needRefresh bool
}

// New creates a scheduler loop.
func New(deps Deps, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Watched returns a copy of the current in-memory activity set.
func (l *Loop) Watched() []schedule.Activity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]schedule.Activity, len(l.activities))
	copy(out, l.activities)
	return out
}

// Run executes the loop until ctx is cancelled (or, in single-cycle mode,
// until one refresh and one poll pass complete). The two cadences run on
// independent tickers: a fast poll never forces a schedule re-fetch and a
// slow refresh never delays a registration check.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Scheduler loop starting",
		"refresh_interval", l.cfg.RefreshInterval,
		"poll_interval", l.cfg.PollInterval,
		"lead_time", l.cfg.LeadTime,
		"single_cycle", l.cfg.SingleCycle)

	// Immediate first cycle.
	l.safeRefresh(ctx)
	l.safePoll(ctx)
	if l.cfg.SingleCycle {
		l.logger.Info("Single cycle complete, exiting")
		return nil
	}

	refreshTicker := time.NewTicker(l.cfg.RefreshInterval)
	defer refreshTicker.Stop()
	pollTicker := time.NewTicker(l.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-refreshTicker.C:
			l.safeRefresh(ctx)
		case <-pollTicker.C:
			// A failed refresh (login or fetch) is retried on the fast
			// cadence instead of waiting out the slow interval.
			if l.refreshPending() {
				l.safeRefresh(ctx)
			}
			l.safePoll(ctx)
		case <-ctx.Done():
			l.logger.Info("Scheduler loop stopped")
			return nil
		}
	}
}

func (l *Loop) refreshPending() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.needRefresh
}

// safeRefresh runs one schedule refresh, containing panics so a bad cycle
// never takes down the always-on process.
func (l *Loop) safeRefresh(ctx context.Context) {
	defer l.recoverTick("refresh")
	if err := l.refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("Schedule refresh failed, will retry on next poll tick", "error", err)
		l.setNeedRefresh(true)
	}
}

// safePoll runs one registration-window pass with the same panic containment.
func (l *Loop) safePoll(ctx context.Context) {
	defer l.recoverTick("poll")
	l.poll(ctx)
}

func (l *Loop) recoverTick(name string) {
	if r := recover(); r != nil {
		l.logger.Error("Tick panicked, continuing", "tick", name, "panic", fmt.Sprintf("%v", r))
	}
}

func (l *Loop) setNeedRefresh(v bool) {
	l.mu.Lock()
	l.needRefresh = v
	l.mu.Unlock()
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	if l.state != s {
		l.logger.Info("State transition", "from", string(l.state), "to", string(s))
		l.state = s
	}
	l.mu.Unlock()
}

// --------------------------------------------------------------------------
// Slow cadence: login + schedule refresh
// --------------------------------------------------------------------------

// ensureSession logs in when there is no valid session.
func (l *Loop) ensureSession(ctx context.Context) error {
	l.mu.RLock()
	valid := l.sess.Valid()
	l.mu.RUnlock()
	if valid {
		return nil
	}

	sess, err := l.deps.Fetcher.Login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	l.mu.Lock()
	l.sess = sess
	l.mu.Unlock()
	l.setState(StateAuthenticated)
	return nil
}

// dropSession forgets the session after an auth rejection so the next
// refresh logs in again.
func (l *Loop) dropSession() {
	l.mu.Lock()
	l.sess = lifetime.Session{}
	l.mu.Unlock()
	l.setState(StateIdle)
	l.setNeedRefresh(true)
}

// refresh logs in if needed, fetches the raw schedule, filters it into the
// working set, writes the snapshot file, and narrates what is being watched.
func (l *Loop) refresh(ctx context.Context) error {
	if err := l.ensureSession(ctx); err != nil {
		return err
	}

	l.mu.RLock()
	sess := l.sess
	l.mu.RUnlock()

	start := l.now().AddDate(0, 0, l.cfg.FetchOffsetDays)
	query := lifetime.ScheduleQuery{
		Start:    start,
		Days:     l.cfg.FetchDurationDays,
		Interest: l.cfg.Interest,
		Club:     l.cfg.Club,
	}

	raw, err := l.deps.Fetcher.FetchSchedule(ctx, sess, query)
	if err != nil {
		if errors.Is(err, lifetime.ErrUnauthorized) {
			l.logger.Warn("Session rejected during fetch, re-authenticating")
			l.dropSession()
		}
		return fmt.Errorf("fetch schedule: %w", err)
	}

	activities := schedule.Filter(raw, l.cfg.Rules)

	l.mu.Lock()
	l.activities = activities
	l.needRefresh = false
	l.mu.Unlock()
	l.setState(StateScheduleLoaded)
	l.logger.Info("Schedule refreshed", "activities", len(activities))

	if l.cfg.SnapshotFile != "" {
		if err := schedule.WriteSnapshot(l.cfg.SnapshotFile, activities); err != nil {
			l.logger.Warn("Snapshot write failed", "error", err)
		}
	}

	if l.deps.Digest != nil && len(activities) > 0 {
		if err := l.deps.Digest.SendScheduleDigest(ctx, activities, l.cfg.LeadTime); err != nil {
			l.logger.Warn("Schedule digest notification failed", "error", err)
		}
	}

	l.narrateWatchList(activities)
	l.setState(StatePolling)
	return nil
}

// narrateWatchList logs every activity still being monitored with its start
// and registration-open instants.
func (l *Loop) narrateWatchList(activities []schedule.Activity) {
	watched := 0
	for _, a := range activities {
		if l.deps.Store.Contains(a.ID) {
			continue
		}
		watched++
		if a.StartsAt.IsZero() {
			l.logger.Warn("Activity has no start timestamp, cannot schedule",
				"class", a.ClassName, "id", a.ID)
			continue
		}
		opens := schedule.RegistrationOpens(a.StartsAt, l.cfg.LeadTime)
		l.logger.Info("Watching activity",
			"class", a.ClassName,
			"id", a.ID,
			"starts", a.StartsAt.Format(time.RFC3339),
			"reg_opens", opens.Format(time.RFC3339))
	}
	if watched == 0 {
		l.logger.Info("No new activities to monitor from this fetch")
	}
}

// --------------------------------------------------------------------------
// Fast cadence: registration-window polling
// --------------------------------------------------------------------------

// poll evaluates every unprocessed, future activity against its registration
// window and attempts registration for any that have opened.
func (l *Loop) poll(ctx context.Context) {
	l.mu.RLock()
	activities := l.activities
	sess := l.sess
	l.mu.RUnlock()

	if len(activities) == 0 {
		l.logger.Debug("No schedule data to check for registrations")
		return
	}
	if !sess.Valid() {
		l.logger.Debug("No valid session, waiting for refresh to re-login")
		return
	}

	now := l.now()
	for _, a := range activities {
		if ctx.Err() != nil {
			return
		}
		if l.deps.Store.Contains(a.ID) {
			continue
		}
		if a.StartsAt.IsZero() {
			continue // narrated at refresh time
		}
		if !a.StartsAt.After(now) {
			l.logger.Debug("Skipping activity that already started",
				"class", a.ClassName, "id", a.ID)
			continue
		}

		opens := schedule.RegistrationOpens(a.StartsAt, l.cfg.LeadTime)
		if now.Before(opens) {
			continue
		}

		l.logger.Info("Registration window OPEN",
			"class", a.ClassName, "id", a.ID,
			"date", a.Date, "start_time", a.StartTime)

		outcome, err := l.deps.Attemptor.Attempt(ctx, sess, a.ID, l.cfg.MemberIDs)
		if err != nil {
			if errors.Is(err, lifetime.ErrUnauthorized) {
				l.logger.Warn("Session rejected during registration, re-authenticating")
				l.dropSession()
			} else if ctx.Err() == nil {
				l.logger.Error("Registration attempt error", "class", a.ClassName, "error", err)
			}
			return
		}

		l.handleOutcome(ctx, a, outcome)
	}
}

// handleOutcome maps an attempt outcome onto notification and persistence.
// Failed-after-retries is deliberately marked processed: bounding wasted API
// calls and alerting a human beats silently hammering the endpoint forever.
// The too-soon rejection is the one exception — the activity stays
// unprocessed so a later tick re-attempts once the server agrees the window
// is open.
func (l *Loop) handleOutcome(ctx context.Context, a schedule.Activity, outcome register.Outcome) {
	classAt := fmt.Sprintf("%s on %s %s", a.ClassName, a.Date, a.StartTime)

	switch outcome.Status {
	case register.StatusSucceeded:
		l.logger.Info("Registration succeeded", "class", a.ClassName, "id", a.ID, "outcome", outcome.String())
		l.notifyTerminal(ctx,
			"Registered for "+a.ClassName,
			fmt.Sprintf("Successfully registered for: %s\nLoc: %s\nConfirm: %s", classAt, a.Location, outcome.Detail))
		l.markProcessed(a, store.OutcomeSucceeded, "")

	case register.StatusIneligible:
		if outcome.Reason == register.ReasonTooSoon {
			l.logger.Info("Server says registration not open yet, will re-evaluate",
				"class", a.ClassName, "id", a.ID, "detail", outcome.Detail)
			return
		}
		l.logger.Warn("Registration ineligible", "class", a.ClassName, "id", a.ID, "outcome", outcome.String())
		l.notifyTerminal(ctx,
			"NOT Registered (Ineligible): "+a.ClassName,
			fmt.Sprintf("Could not register for: %s\nReason: %s", classAt, outcome.Detail))
		l.markProcessed(a, store.OutcomeIneligible, string(outcome.Reason))

	case register.StatusFailedAfterRetries:
		l.logger.Error("Registration failed after retries",
			"class", a.ClassName, "id", a.ID, "attempts", outcome.Attempts, "detail", outcome.Detail)
		l.notifyTerminal(ctx,
			"FAILED to Register: "+a.ClassName,
			fmt.Sprintf("Failed to register for: %s after %d attempts.\nLast error: %s", classAt, outcome.Attempts, outcome.Detail))
		l.markProcessed(a, store.OutcomeFailedAfterRetries, "")
	}
}

// notifyTerminal sends an activity-terminal notification. Notify failures
// are logged, never fatal.
func (l *Loop) notifyTerminal(ctx context.Context, subject, body string) {
	if l.deps.Notifier == nil {
		return
	}
	if err := l.deps.Notifier.Send(ctx, subject, body); err != nil {
		l.logger.Warn("Notification failed", "subject", subject, "error", err)
	}
}

// markProcessed records the terminal outcome durably. A persistence failure
// is loud in the logs: it means a restart could re-attempt this activity.
func (l *Loop) markProcessed(a schedule.Activity, outcome store.Outcome, reason string) {
	if err := l.deps.Store.MarkProcessed(a.ID, outcome, reason); err != nil {
		l.logger.Error("Failed to persist processed state, restart may re-attempt",
			"id", a.ID, "error", err)
	}
}
