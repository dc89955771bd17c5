// Package sink batches completed records and commits them across
// independent output formats.
package sink

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"jobharvest/internal/jobs"
	"jobharvest/internal/progress"
)

// FormatWriter commits a batch of records to one output format.
// WriteBatch must be atomic with respect to other WriteBatch calls on
// the same writer; the sink serializes them.
type FormatWriter interface {
	Name() string
	WriteBatch(ctx context.Context, batch []jobs.Record) error
	Close() error
}

// Sink buffers records and flushes them once the buffer reaches the
// batch size, and unconditionally on Close. A failure in one format is
// isolated: the other formats still receive the batch.
//
// Memory is bounded by the batch threshold: at most batchSize buffered
// records plus one in-flight batch per concurrent flush.
type Sink struct {
	mu   sync.Mutex
	buf  []jobs.Record
	seen map[string]struct{}

	batchSize int
	writers   []FormatWriter
	flushMu   []sync.Mutex // one per writer, serializes per-format flushes
	logger    *zap.Logger
}

// New constructs a Sink over the given format writers.
func New(batchSize int, writers []FormatWriter, logger *zap.Logger) *Sink {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Sink{
		buf:       make([]jobs.Record, 0, batchSize),
		seen:      make(map[string]struct{}),
		batchSize: batchSize,
		writers:   writers,
		flushMu:   make([]sync.Mutex, len(writers)),
		logger:    logger,
	}
}

// Submit buffers one record, triggering a flush when the batch size is
// reached. A record whose identity was already submitted is dropped
// here, the last guard before anything durable is written.
func (s *Sink) Submit(ctx context.Context, rec jobs.Record) error {
	s.mu.Lock()
	key := rec.Identity.Key()
	if _, dup := s.seen[key]; dup {
		s.mu.Unlock()
		s.logger.Warn("duplicate record dropped at sink",
			zap.String("job_id", rec.Identity.JobID),
			zap.String("title", rec.Identity.Title),
		)
		return nil
	}
	s.seen[key] = struct{}{}
	s.buf = append(s.buf, rec)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush commits the buffered records to every format. Each format is
// written independently; failures are collected and returned as joined
// StorageErrors naming the affected formats, never aborting the other
// writers.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.buf
	s.buf = make([]jobs.Record, 0, s.batchSize)
	s.mu.Unlock()

	var errs []error
	for i, w := range s.writers {
		s.flushMu[i].Lock()
		err := w.WriteBatch(ctx, batch)
		s.flushMu[i].Unlock()
		if err != nil {
			serr := &jobs.StorageError{Format: w.Name(), Err: err}
			s.logger.Warn("format write failed, other formats continue",
				zap.String("format", w.Name()),
				zap.Error(err),
			)
			errs = append(errs, serr)
			continue
		}
		progress.RecordsFlushed.WithLabelValues(w.Name()).Add(float64(len(batch)))
	}
	return errors.Join(errs...)
}

// Close flushes any remaining records and closes all writers so no
// committed record is lost at shutdown.
func (s *Sink) Close(ctx context.Context) error {
	var errs []error
	if err := s.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, &jobs.StorageError{Format: w.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}
