// Package discover walks paginated listing pages and feeds newly
// claimed job identities into the extraction queue.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jobharvest/internal/fetch"
	"jobharvest/internal/jobs"
	"jobharvest/internal/progress"
)

// detailPathPrefix is the path shape of every posting detail link on a
// listing page.
const detailPathPrefix = "/en/vacancies/detail/"

// numPagesRe pulls the page count out of the JSON state blob embedded
// in every listing page.
var numPagesRe = regexp.MustCompile(`"numPages"\s*:\s*(\d+)`)

// Enqueuer receives claimed items. The pipeline wraps the queue here so
// it can account for outstanding work.
type Enqueuer interface {
	Enqueue(ctx context.Context, item jobs.QueueItem) error
}

// Tracker is the slice of progress tracking discovery needs.
type Tracker interface {
	RecordSkipped(id jobs.Identity)
}

// Config bounds a discovery run.
type Config struct {
	BaseURL     string
	SearchTerms []string
	PageCeiling int
	MaxJobs     int
	RatePerSec  float64
}

// Discoverer runs single-threaded over listing pages. Parallelism lives
// in the extraction pool; discovery stays sequential so pagination
// state is trivial.
type Discoverer struct {
	fetcher  fetch.Fetcher
	retry    fetch.RetryPolicy
	registry *jobs.Registry
	queue    Enqueuer
	tracker  Tracker
	limiter  *rate.Limiter
	cfg      Config
	logger   *zap.Logger

	enqueued int
}

// New constructs a Discoverer.
func New(fetcher fetch.Fetcher, retry fetch.RetryPolicy, registry *jobs.Registry,
	queue Enqueuer, tracker Tracker, cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = 30
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	return &Discoverer{
		fetcher:  fetcher,
		retry:    retry,
		registry: registry,
		queue:    queue,
		tracker:  tracker,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run walks every search term until its pagination is exhausted, the
// page ceiling is hit, or the job ceiling is reached. A listing page
// whose fetch fails after all retries is logged and skipped; the run
// keeps going.
func (d *Discoverer) Run(ctx context.Context) error {
	for _, term := range d.cfg.SearchTerms {
		if err := d.walkTerm(ctx, term); err != nil {
			return err
		}
		if d.ceilingReached() {
			d.logger.Info("job ceiling reached, stopping discovery",
				zap.Int("enqueued", d.enqueued))
			return nil
		}
	}
	d.logger.Info("discovery finished", zap.Int("enqueued", d.enqueued))
	return nil
}

// walkTerm advances through a term's pages only on positive evidence
// of more: a numPages count from the state blob once seen, or a
// rel=next link on the current page. Without evidence the walk stops
// rather than probing past the end of real pagination.
func (d *Discoverer) walkTerm(ctx context.Context, term string) error {
	lastPage := 0 // unknown until a page reveals numPages

	for page := 1; page <= d.cfg.PageCeiling; page++ {
		body, err := d.fetchListing(ctx, term, page)
		if err != nil {
			if jobs.IsFatal(err) || errors.Is(err, context.Canceled) {
				return err
			}
			d.logger.Warn("listing page skipped after exhausted retries",
				zap.String("term", term), zap.Int("page", page), zap.Error(err))
			if lastPage == 0 || page >= lastPage {
				return nil
			}
			continue
		}
		progress.PagesDiscovered.Inc()

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			d.logger.Warn("listing page unparseable",
				zap.String("term", term), zap.Int("page", page), zap.Error(err))
			if lastPage == 0 || page >= lastPage {
				return nil
			}
			continue
		}

		if lastPage == 0 {
			lastPage = d.pagesFromMeta(body, term)
		}

		d.collectLinks(ctx, doc, page)
		if d.ceilingReached() {
			return nil
		}
		if lastPage > 0 && page >= lastPage {
			return nil
		}
		if lastPage == 0 && doc.Find(`a[rel="next"]`).Length() == 0 {
			return nil
		}
	}
	return nil
}

// pagesFromMeta reads the numPages count from the embedded state blob,
// truncated at the page ceiling. Returns 0 when absent.
func (d *Discoverer) pagesFromMeta(body []byte, term string) int {
	m := numPagesRe.FindSubmatch(body)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil || n <= 0 {
		return 0
	}
	if n > d.cfg.PageCeiling {
		d.logger.Info("pagination truncated at ceiling",
			zap.String("term", term), zap.Int("num_pages", n),
			zap.Int("ceiling", d.cfg.PageCeiling))
		return d.cfg.PageCeiling
	}
	return n
}

func (d *Discoverer) collectLinks(ctx context.Context, doc *goquery.Document, page int) {
	doc.Find(`a[href^="` + detailPathPrefix + `"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Text())
		jobID, err := jobs.JobIDFromURL(href)
		if err != nil {
			d.logger.Debug("unparseable detail link skipped", zap.String("href", href))
			return true
		}
		id := jobs.NewIdentity(jobID, title)
		if id.IsZero() {
			return true
		}
		if !d.registry.Claim(id) {
			d.tracker.RecordSkipped(id)
			return true
		}
		item := jobs.QueueItem{
			URL:       d.absoluteURL(href),
			Identity:  id,
			PageIndex: page,
		}
		if err := d.queue.Enqueue(ctx, item); err != nil {
			d.logger.Warn("enqueue failed", zap.String("job_id", id.JobID), zap.Error(err))
			return false
		}
		d.enqueued++
		return !d.ceilingReached()
	})
}

func (d *Discoverer) ceilingReached() bool {
	return d.cfg.MaxJobs > 0 && d.enqueued >= d.cfg.MaxJobs
}

func (d *Discoverer) fetchListing(ctx context.Context, term string, page int) ([]byte, error) {
	target := d.listingURL(term, page)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		pg, err := d.fetcher.Fetch(ctx, target, http.Header{})
		if err == nil {
			return pg.Body, nil
		}
		lastErr = err
		if !d.retry.ShouldRetry(err, attempt) {
			break
		}
		progress.FetchRetries.Inc()
		if err := fetch.Sleep(ctx, d.retry, attempt); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch listing %q page %d: %w", term, page, lastErr)
}

func (d *Discoverer) listingURL(term string, page int) string {
	q := url.Values{}
	q.Set("term", term)
	q.Set("page", strconv.Itoa(page))
	return strings.TrimRight(d.cfg.BaseURL, "/") + "/en/vacancies/?" + q.Encode()
}

func (d *Discoverer) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimRight(d.cfg.BaseURL, "/") + href
}
