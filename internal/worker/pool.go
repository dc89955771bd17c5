// Package worker runs the extraction pool: items come off the queue,
// get fetched and parsed, and end up in the sink and the archive.
package worker

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobharvest/internal/archive"
	"jobharvest/internal/extract"
	"jobharvest/internal/fetch"
	"jobharvest/internal/jobs"
	"jobharvest/internal/progress"
	"jobharvest/internal/queue"
)

// ItemQueue is the queue surface the pool needs: pull work, push
// retries back when there is room.
type ItemQueue interface {
	Dequeue(ctx context.Context) (jobs.QueueItem, error)
	TryEnqueue(item jobs.QueueItem) bool
}

// Sink receives completed records.
type Sink interface {
	Submit(ctx context.Context, rec jobs.Record) error
}

// Archiver receives the raw page bytes of successful fetches.
type Archiver interface {
	Submit(ctx context.Context, id jobs.Identity, body []byte) error
}

// Tracker records terminal outcomes.
type Tracker interface {
	RecordProcessed(id jobs.Identity)
	RecordFailed(id jobs.Identity)
	RecordIncomplete(id jobs.Identity)
}

// Pool is a fixed-size extraction worker pool. A retryable failure puts
// the item back on the queue with a bumped attempt count when the queue
// has room, and retries in place otherwise; an exhausted or fatal one
// settles the item so the pipeline can account for it.
type Pool struct {
	workers  int
	queue    ItemQueue
	fetcher  fetch.Fetcher
	retry    fetch.RetryPolicy
	sink     Sink
	archiver Archiver
	tracker  Tracker
	settle   func(jobs.QueueItem)
	logger   *zap.Logger
}

// Options wires a Pool. Settle is called exactly once per item that
// reaches a terminal state; requeues keep the item outstanding.
type Options struct {
	Workers  int
	Queue    ItemQueue
	Fetcher  fetch.Fetcher
	Retry    fetch.RetryPolicy
	Sink     Sink
	Archiver Archiver
	Tracker  Tracker
	Settle   func(jobs.QueueItem)
	Logger   *zap.Logger
}

// NewPool constructs the pool.
func NewPool(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.Settle == nil {
		opts.Settle = func(jobs.QueueItem) {}
	}
	return &Pool{
		workers:  opts.Workers,
		queue:    opts.Queue,
		fetcher:  opts.Fetcher,
		retry:    opts.Retry,
		sink:     opts.Sink,
		archiver: opts.Archiver,
		tracker:  opts.Tracker,
		settle:   opts.Settle,
		logger:   opts.Logger,
	}
}

// Run blocks until the queue closes and drains, the context ends, or a
// fatal error aborts the run.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			return p.loop(gctx, worker)
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, worker int) error {
	log := p.logger.With(zap.Int("worker", worker))
	for {
		item, err := p.queue.Dequeue(ctx)
		if errors.Is(err, queue.ErrClosed) {
			log.Debug("queue drained, worker exiting")
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.process(ctx, log, item); err != nil {
			return err
		}
	}
}

// process handles one dequeued item. Only fatal errors propagate; every
// other outcome is absorbed so the pool keeps running. Every dequeued
// item reaches exactly one tracker event, including cancellation
// mid-attempt, which is reported as incomplete rather than dropped
// silently.
func (p *Pool) process(ctx context.Context, log *zap.Logger, item jobs.QueueItem) error {
	for attempt := item.Attempt + 1; ; attempt++ {
		rec, body, err := p.extractOnce(ctx, item)
		if err == nil {
			if aerr := p.archiver.Submit(ctx, item.Identity, body); aerr != nil {
				log.Warn("archive submit failed", zap.String("job_id", item.Identity.JobID), zap.Error(aerr))
			}
			if serr := p.sink.Submit(ctx, rec); serr != nil {
				// Storage failures are isolated per format; extraction
				// itself succeeded, so the job is still processed.
				log.Warn("storage flush reported errors", zap.Error(serr))
			}
			p.tracker.RecordProcessed(item.Identity)
			p.settle(item)
			return nil
		}

		if jobs.IsFatal(err) {
			p.tracker.RecordIncomplete(item.Identity)
			p.settle(item)
			log.Error("fatal fetch error, aborting run", zap.Error(err))
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.tracker.RecordIncomplete(item.Identity)
			p.settle(item)
			return err
		}

		if !p.retry.ShouldRetry(err, attempt) {
			p.tracker.RecordFailed(item.Identity)
			p.settle(item)
			log.Warn("job failed after exhausted retries",
				zap.String("job_id", item.Identity.JobID),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return nil
		}

		progress.FetchRetries.Inc()
		log.Debug("retrying job",
			zap.String("job_id", item.Identity.JobID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if err := fetch.Sleep(ctx, p.retry, attempt); err != nil {
			p.tracker.RecordIncomplete(item.Identity)
			p.settle(item)
			return err
		}
		item.Attempt = attempt
		if p.queue.TryEnqueue(item) {
			return nil
		}
		// Queue full: every consumer may already be a blocked producer,
		// so retry in place instead of waiting for room.
	}
}

// extractOnce fetches the detail page and parses it. A parse failure is
// surfaced like a transport one: the caller retries with a fresh fetch.
func (p *Pool) extractOnce(ctx context.Context, item jobs.QueueItem) (jobs.Record, []byte, error) {
	pg, err := p.fetcher.Fetch(ctx, item.URL, http.Header{})
	if err != nil {
		return jobs.Record{}, nil, err
	}
	rec, err := extract.Parse(pg.URL, pg.Body, item.Identity)
	if err != nil {
		return jobs.Record{}, nil, err
	}
	rec.HTMLRef = archive.FileName(item.Identity)
	return rec, pg.Body, nil
}
