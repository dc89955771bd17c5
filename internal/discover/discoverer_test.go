package discover

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobharvest/internal/fetch"
	"jobharvest/internal/jobs"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fails map[string]int
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, _ http.Header) (fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if n := f.fails[rawURL]; n > 0 {
		f.fails[rawURL] = n - 1
		return fetch.Page{}, &jobs.TransportError{URL: rawURL, Err: fmt.Errorf("boom")}
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return fetch.Page{}, &jobs.TransportError{URL: rawURL, StatusCode: 404, Err: fmt.Errorf("not found")}
	}
	return fetch.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

type captureQueue struct {
	mu    sync.Mutex
	items []jobs.QueueItem
}

func (q *captureQueue) Enqueue(_ context.Context, item jobs.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

type countingTracker struct {
	mu      sync.Mutex
	skipped []jobs.Identity
}

func (c *countingTracker) RecordSkipped(id jobs.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = append(c.skipped, id)
}

func listingPage(numPages int, links ...[2]string) string {
	body := fmt.Sprintf(`<html><body><script>{"meta":{"numPages":%d}}</script><ul>`, numPages)
	for _, l := range links {
		body += fmt.Sprintf(`<li><a href="/en/vacancies/detail/%s/">%s</a></li>`, l[0], l[1])
	}
	return body + `</ul></body></html>`
}

func listingURL(term string, page int) string {
	return fmt.Sprintf("https://www.jobs.ch/en/vacancies/?page=%d&term=%s", page, term)
}

func newDiscoverer(f *fakeFetcher, q *captureQueue, tr *countingTracker, cfg Config) *Discoverer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.jobs.ch"
	}
	cfg.RatePerSec = 1000 // keep tests fast
	return New(f,
		fetch.NewExponentialRetryPolicy(3, time.Millisecond, 5*time.Millisecond),
		jobs.NewRegistry(), q, tr, cfg, zap.NewNop())
}

func TestDiscoverWalksAllPagesFromNumPages(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		listingURL("koch", 1): listingPage(2, [2]string{"a1", "Koch"}),
		listingURL("koch", 2): listingPage(2, [2]string{"a2", "Sous Chef"}),
	}}
	q := &captureQueue{}
	tr := &countingTracker{}
	d := newDiscoverer(f, q, tr, Config{SearchTerms: []string{"koch"}, PageCeiling: 30})

	require.NoError(t, d.Run(context.Background()))
	require.Len(t, q.items, 2)
	assert.Equal(t, "a1", q.items[0].Identity.JobID)
	assert.Equal(t, "https://www.jobs.ch/en/vacancies/detail/a2/", q.items[1].URL)
	assert.Equal(t, 2, q.items[1].PageIndex)
}

func TestDiscoverRespectsPageCeiling(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		listingURL("koch", 1): listingPage(50, [2]string{"a1", "Koch"}),
		listingURL("koch", 2): listingPage(50, [2]string{"a2", "Koch 2"}),
	}}
	q := &captureQueue{}
	d := newDiscoverer(f, q, &countingTracker{}, Config{SearchTerms: []string{"koch"}, PageCeiling: 2})

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, f.calls, 2)
	assert.Len(t, q.items, 2)
}

func TestDiscoverSkipsDuplicateIdentities(t *testing.T) {
	t.Parallel()

	// Same posting listed under two terms; the second sighting loses the
	// claim and is counted as skipped.
	f := &fakeFetcher{pages: map[string]string{
		listingURL("koch", 1):  listingPage(1, [2]string{"a1", "Koch"}),
		listingURL("pizza", 1): listingPage(1, [2]string{"a1", "Koch"}),
	}}
	q := &captureQueue{}
	tr := &countingTracker{}
	d := newDiscoverer(f, q, tr, Config{SearchTerms: []string{"koch", "pizza"}})

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, q.items, 1)
	require.Len(t, tr.skipped, 1)
	assert.Equal(t, "a1", tr.skipped[0].JobID)
}

func TestDiscoverStopsAtJobCeiling(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		listingURL("koch", 1): listingPage(3,
			[2]string{"a1", "One"}, [2]string{"a2", "Two"}, [2]string{"a3", "Three"}),
	}}
	q := &captureQueue{}
	d := newDiscoverer(f, q, &countingTracker{}, Config{SearchTerms: []string{"koch"}, MaxJobs: 2})

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, q.items, 2)
	assert.Len(t, f.calls, 1)
}

func TestDiscoverRetriesListingFetch(t *testing.T) {
	t.Parallel()

	target := listingURL("koch", 1)
	f := &fakeFetcher{
		pages: map[string]string{target: listingPage(1, [2]string{"a1", "Koch"})},
		fails: map[string]int{target: 2},
	}
	q := &captureQueue{}
	d := newDiscoverer(f, q, &countingTracker{}, Config{SearchTerms: []string{"koch"}})

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, q.items, 1)
	assert.Len(t, f.calls, 3)
}

// Without a numPages count, pagination follows the rel=next link and
// stops the first time it is absent instead of probing up to the
// ceiling.
func TestDiscoverFallbackStopsWithoutNextLink(t *testing.T) {
	t.Parallel()

	page1 := `<html><body>
<a href="/en/vacancies/detail/a1/">One</a>
<a rel="next" href="/en/vacancies/?page=2&amp;term=koch">Next</a>
</body></html>`
	page2 := `<html><body><a href="/en/vacancies/detail/a2/">Two</a></body></html>`

	f := &fakeFetcher{pages: map[string]string{
		listingURL("koch", 1): page1,
		listingURL("koch", 2): page2,
	}}
	q := &captureQueue{}
	d := newDiscoverer(f, q, &countingTracker{}, Config{SearchTerms: []string{"koch"}, PageCeiling: 30})

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, f.calls, 2)
	assert.Len(t, q.items, 2)
}

// A first page that stays unreachable gives no pagination evidence, so
// the walk ends without probing later pages.
func TestDiscoverStopsWhenFirstPageUnavailable(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{}}
	q := &captureQueue{}
	d := newDiscoverer(f, q, &countingTracker{}, Config{SearchTerms: []string{"koch"}, PageCeiling: 30})

	require.NoError(t, d.Run(context.Background()))
	// Only the retries of page 1, never a fetch of page 2.
	assert.Len(t, f.calls, 3)
	assert.Empty(t, q.items)
}

func TestDiscoverContinuesPastDeadListingPage(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		listingURL("koch", 1): listingPage(3, [2]string{"a1", "One"}),
		// page 2 missing entirely
		listingURL("koch", 3): listingPage(3, [2]string{"a3", "Three"}),
	}}
	q := &captureQueue{}
	d := newDiscoverer(f, q, &countingTracker{}, Config{SearchTerms: []string{"koch"}})

	require.NoError(t, d.Run(context.Background()))
	require.Len(t, q.items, 2)
	assert.Equal(t, "a3", q.items[1].Identity.JobID)
}
