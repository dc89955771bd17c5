package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_jobs_processed_total",
		Help: "Jobs extracted and handed to the storage sink.",
	})
	jobsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_jobs_skipped_total",
		Help: "Duplicate jobs discarded after losing the identity claim.",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_jobs_failed_total",
		Help: "Jobs dropped after exhausting the retry ceiling.",
	})
	jobsIncomplete = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_jobs_incomplete_total",
		Help: "Jobs interrupted mid-attempt by cancellation or abort.",
	})

	// FetchRetries counts re-queued extraction attempts.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_fetch_retries_total",
		Help: "Extraction attempts pushed back onto the queue.",
	})
	// PagesDiscovered counts listing pages walked by the discoverer.
	PagesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_listing_pages_total",
		Help: "Listing pages fetched during discovery.",
	})
	// RecordsFlushed counts records committed per output format.
	RecordsFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_flushed_total",
		Help: "Records committed to durable storage, partitioned by format.",
	}, []string{"format"})
	// PagesArchived counts raw HTML files persisted by the archiver.
	PagesArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_pages_archived_total",
		Help: "Raw HTML pages written by the archiver.",
	})
)
