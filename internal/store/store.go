// Package store persists the set of activity IDs whose handling has reached a
// terminal outcome, so restarts never duplicate registration attempts or
// notification spam. State lives in a single human-readable JSON file and
// every mutation rewrites it atomically.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Outcome is the terminal classification recorded for a processed activity.
type Outcome string

const (
	OutcomeSucceeded          Outcome = "succeeded"
	OutcomeFailedAfterRetries Outcome = "failed_after_retries"
	OutcomeIneligible         Outcome = "ineligible"
)

// ErrCorrupt marks a state file that exists but cannot be parsed. Fatal at
// startup: an operator must be able to distinguish "never run" from "history
// lost", since losing history means duplicate registration attempts.
var ErrCorrupt = errors.New("processed-event state file is corrupt")

// Record is one terminally-handled activity. Never mutated or deleted after
// creation; the set grows slowly with the number of classes per season.
type Record struct {
	ID          string    `json:"id"`
	Outcome     Outcome   `json:"outcome"`
	Reason      string    `json:"reason,omitempty"` // set for ineligible outcomes
	ProcessedAt time.Time `json:"processed_at"`
}

// Store is the persisted processed-event set. Safe for concurrent use; the
// scheduler writes while the status API reads.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records []Record
	byID    map[string]int // index into records
}

// Open loads the store from path. A missing file is a fresh start, not an
// error; an unparseable file returns ErrCorrupt.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
		byID:   make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No processed-event state found, starting fresh", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for i, r := range s.records {
		s.byID[r.ID] = i
	}
	logger.Info("Loaded processed-event state", "path", path, "count", len(s.records))
	return s, nil
}

// Contains reports whether an activity ID has already been terminally handled.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of processed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of all processed records.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// MarkProcessed records a terminal outcome for an activity and persists the
// full snapshot durably before returning. Idempotent: marking an already
// processed ID changes nothing on disk.
func (s *Store) MarkProcessed(id string, outcome Outcome, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; ok {
		s.logger.Debug("Activity already marked processed", "id", id)
		return nil
	}

	s.byID[id] = len(s.records)
	s.records = append(s.records, Record{
		ID:          id,
		Outcome:     outcome,
		Reason:      reason,
		ProcessedAt: s.now().UTC(),
	})

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist processed state: %w", err)
	}
	return nil
}

// persistLocked writes the full record list to a temp file and atomically
// renames it over the state file, so a crash mid-write can never leave a
// half-written snapshot. Caller must hold mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
