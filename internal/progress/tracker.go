// Package progress tracks run counters and keeps the per-job audit
// trail.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobharvest/internal/jobs"
)

// EventKind labels a terminal job outcome.
type EventKind string

// Terminal event kinds; after one of these no further attempts occur.
const (
	EventProcessed  EventKind = "processed"
	EventSkipped    EventKind = "skipped"
	EventFailed     EventKind = "failed"
	EventIncomplete EventKind = "incomplete"
)

// Counters is a consistent snapshot of all counters.
type Counters struct {
	Processed  int64 `json:"processed"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
	Incomplete int64 `json:"incomplete"`
}

// Tracker owns the monotonically increasing run counters and the
// append-only audit log. One mutex guards all three counters so
// Snapshot always observes a consistent triple.
type Tracker struct {
	mu       sync.Mutex
	counters Counters
	audit    *os.File
	runID    string
	logger   *zap.Logger
}

// NewTracker opens (or creates) the audit log in append mode.
func NewTracker(auditPath, runID string, logger *zap.Logger) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(auditPath), 0o750); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Tracker{
		audit:  f,
		runID:  runID,
		logger: logger,
	}, nil
}

// RecordProcessed counts a successful terminal outcome.
func (t *Tracker) RecordProcessed(id jobs.Identity) {
	t.record(EventProcessed, id, func(c *Counters) { c.Processed++ })
	jobsProcessed.Inc()
}

// RecordSkipped counts a duplicate discarded after its identity lost
// the claim race.
func (t *Tracker) RecordSkipped(id jobs.Identity) {
	t.record(EventSkipped, id, func(c *Counters) { c.Skipped++ })
	jobsSkipped.Inc()
}

// RecordFailed counts a permanent failure after exhausted retries.
func (t *Tracker) RecordFailed(id jobs.Identity) {
	t.record(EventFailed, id, func(c *Counters) { c.Failed++ })
	jobsFailed.Inc()
}

// RecordIncomplete counts a job interrupted mid-attempt, usually by
// cancellation or a run-aborting error. The audit trail still carries a
// line for it so no claimed job vanishes without a terminal event.
func (t *Tracker) RecordIncomplete(id jobs.Identity) {
	t.record(EventIncomplete, id, func(c *Counters) { c.Incomplete++ })
	jobsIncomplete.Inc()
}

func (t *Tracker) record(kind EventKind, id jobs.Identity, bump func(*Counters)) {
	line := fmt.Sprintf("%s run=%s event=%s job=%s title=%q\n",
		time.Now().UTC().Format(time.RFC3339), t.runID, kind, id.JobID, id.Title)

	t.mu.Lock()
	bump(&t.counters)
	_, err := t.audit.WriteString(line)
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("audit log append failed", zap.Error(err), zap.String("event", string(kind)))
	}
}

// Snapshot returns a consistent view of all three counters. Safe to
// call concurrently with increments.
func (t *Tracker) Snapshot() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// Close flushes and closes the audit log.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.audit.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	if err := t.audit.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}
