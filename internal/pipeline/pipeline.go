// Package pipeline wires discovery, extraction, storage, archiving and
// progress tracking into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobharvest/internal/archive"
	"jobharvest/internal/config"
	"jobharvest/internal/discover"
	"jobharvest/internal/fetch"
	"jobharvest/internal/jobs"
	"jobharvest/internal/progress"
	"jobharvest/internal/queue"
	"jobharvest/internal/sink"
	"jobharvest/internal/worker"
)

// accountingQueue counts items handed to the queue by discovery. Each
// item stays outstanding across retries and is settled exactly once, so
// the queue closes only after discovery finished AND every item reached
// a terminal state.
type accountingQueue struct {
	q *queue.Queue

	mu            sync.Mutex
	outstanding   int
	discoveryDone bool
}

func (a *accountingQueue) Enqueue(ctx context.Context, item jobs.QueueItem) error {
	a.mu.Lock()
	a.outstanding++
	a.mu.Unlock()
	if err := a.q.Enqueue(ctx, item); err != nil {
		a.settle()
		return err
	}
	return nil
}

func (a *accountingQueue) settle() {
	a.mu.Lock()
	a.outstanding--
	drained := a.discoveryDone && a.outstanding == 0
	a.mu.Unlock()
	if drained {
		a.q.Close()
	}
}

func (a *accountingQueue) discoveryFinished() {
	a.mu.Lock()
	a.discoveryDone = true
	drained := a.outstanding == 0
	a.mu.Unlock()
	if drained {
		a.q.Close()
	}
}

// Pipeline owns one harvest run end to end.
type Pipeline struct {
	cfg     config.Config
	fetcher fetch.Fetcher
	tracker *progress.Tracker
	runID   string
	logger  *zap.Logger
}

// New prepares a run. The fetcher is injected so the caller decides
// between the direct and the rendering-proxy backend.
func New(cfg config.Config, fetcher fetch.Fetcher, logger *zap.Logger) (*Pipeline, error) {
	runID := uuid.NewString()
	tracker, err := progress.NewTracker(cfg.Progress.AuditLogPath, runID, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		tracker: tracker,
		runID:   runID,
		logger:  logger.With(zap.String("run_id", runID)),
	}, nil
}

// Tracker exposes run counters for the status API.
func (p *Pipeline) Tracker() *progress.Tracker {
	return p.tracker
}

// RunID identifies this run in logs and the audit trail.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes the harvest and blocks until it completes, the context
// is canceled, or a fatal error aborts it. Cleanup (final flush,
// archive drain and bundle, run summary) happens on every path.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	p.logger.Info("harvest starting",
		zap.Strings("terms", p.cfg.Site.SearchTerms),
		zap.Int("page_ceiling", p.cfg.Site.PageCeiling),
		zap.Int("max_jobs", p.cfg.Site.MaxJobs),
		zap.Int("extract_workers", p.cfg.Workers.Extract),
	)

	if err := p.ensureOutputDirs(); err != nil {
		return err
	}

	writers, err := p.openWriters()
	if err != nil {
		return err
	}
	recordSink := sink.New(p.cfg.Sink.BatchSize, writers, p.logger)

	archiver, err := archive.New(p.cfg.Archive.Dir, p.cfg.Archive.FileLimit,
		p.cfg.Workers.Archive, p.logger)
	if err != nil {
		return err
	}

	q := queue.New(p.cfg.Workers.QueueDepth)
	acct := &accountingQueue{q: q}
	registry := jobs.NewRegistry()
	retry := fetch.NewExponentialRetryPolicy(p.cfg.Retry.MaxAttempts,
		p.cfg.Retry.BackoffInitial(), p.cfg.Retry.BackoffMax())

	discoverer := discover.New(p.fetcher, retry, registry, acct, p.tracker, discover.Config{
		BaseURL:     p.cfg.Site.BaseURL,
		SearchTerms: p.cfg.Site.SearchTerms,
		PageCeiling: p.cfg.Site.PageCeiling,
		MaxJobs:     p.cfg.Site.MaxJobs,
		RatePerSec:  p.cfg.Site.DomainQPS,
	}, p.logger)

	pool := worker.NewPool(worker.Options{
		Workers:  p.cfg.Workers.Extract,
		Queue:    q,
		Fetcher:  p.fetcher,
		Retry:    retry,
		Sink:     recordSink,
		Archiver: archiver,
		Tracker:  p.tracker,
		Settle:   func(jobs.QueueItem) { acct.settle() },
		Logger:   p.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer acct.discoveryFinished()
		return discoverer.Run(gctx)
	})
	g.Go(func() error {
		return pool.Run(gctx)
	})
	runErr := g.Wait()
	q.Close()

	var cleanupErrs []error
	if err := recordSink.Close(context.Background()); err != nil {
		cleanupErrs = append(cleanupErrs, err)
	}
	if err := archiver.Drain(); err != nil {
		cleanupErrs = append(cleanupErrs, err)
	}
	if err := archiver.Bundle(p.cfg.Archive.BundlePath); err != nil {
		cleanupErrs = append(cleanupErrs, err)
	}

	snap := p.tracker.Snapshot()
	p.logger.Info("harvest finished",
		zap.Int64("processed", snap.Processed),
		zap.Int64("skipped", snap.Skipped),
		zap.Int64("failed", snap.Failed),
		zap.Int64("incomplete", snap.Incomplete),
		zap.Int("archived", len(archiver.Entries())),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("aborted", runErr != nil),
	)

	if err := p.tracker.Close(); err != nil {
		cleanupErrs = append(cleanupErrs, err)
	}
	if runErr != nil {
		return runErr
	}
	return errors.Join(cleanupErrs...)
}

func (p *Pipeline) ensureOutputDirs() error {
	dirs := []string{
		p.cfg.DataDir(),
		filepath.Dir(p.cfg.Sink.CSVPath),
		filepath.Dir(p.cfg.Sink.JSONPath),
		filepath.Dir(p.cfg.Sink.SQLitePath),
		filepath.Dir(p.cfg.Archive.BundlePath),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return fmt.Errorf("create output dir %s: %w", d, err)
		}
	}
	return nil
}

func (p *Pipeline) openWriters() ([]sink.FormatWriter, error) {
	csvW, err := sink.NewCSVWriter(p.cfg.Sink.CSVPath)
	if err != nil {
		return nil, err
	}
	sqlW, err := sink.NewSQLiteWriter(p.cfg.Sink.SQLitePath)
	if err != nil {
		_ = csvW.Close()
		return nil, err
	}
	return []sink.FormatWriter{
		csvW,
		sink.NewJSONWriter(p.cfg.Sink.JSONPath),
		sqlW,
	}, nil
}
