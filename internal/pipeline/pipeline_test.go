package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobharvest/internal/config"
	"jobharvest/internal/fetch"
	"jobharvest/internal/jobs"
)

type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fails map[string]int
}

func (f *siteFetcher) Fetch(_ context.Context, rawURL string, _ http.Header) (fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[rawURL] > 0 {
		f.fails[rawURL]--
		return fetch.Page{}, &jobs.TransportError{URL: rawURL, Err: fmt.Errorf("transient")}
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return fetch.Page{}, &jobs.TransportError{URL: rawURL, StatusCode: 404, Err: fmt.Errorf("not found")}
	}
	return fetch.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func detailPage(title, location string) string {
	return fmt.Sprintf(`<html><head><title>%s - Job Offer</title></head>
<body><h1>%s</h1><span>Place of work:</span><span>%s</span></body></html>`, title, title, location)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Site: config.SiteConfig{
			BaseURL:     "https://www.jobs.ch",
			SearchTerms: []string{"koch"},
			PageCeiling: 5,
			MaxJobs:     100,
			DomainQPS:   1000,
		},
		Workers: config.WorkersConfig{Extract: 2, Archive: 1, QueueDepth: 32},
		Retry:   config.RetryConfig{MaxAttempts: 3, BackoffInitialMs: 1, BackoffMaxMs: 5},
		Sink: config.SinkConfig{
			BatchSize:  2,
			CSVPath:    filepath.Join(dir, "jobs.csv"),
			JSONPath:   filepath.Join(dir, "jobs.json"),
			SQLitePath: filepath.Join(dir, "jobs.db"),
		},
		Archive: config.ArchiveConfig{
			Dir:        filepath.Join(dir, "html"),
			BundlePath: filepath.Join(dir, "pages.zip"),
			FileLimit:  90,
		},
		Progress: config.ProgressConfig{
			AuditLogPath: filepath.Join(dir, "harvest.log"),
		},
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	listing := `<html><body><script>{"meta":{"numPages":1}}</script>
<a href="/en/vacancies/detail/a1/">Koch</a>
<a href="/en/vacancies/detail/a2/">Pilot</a>
<a href="/en/vacancies/detail/a3/">Gone</a>
</body></html>`

	f := &siteFetcher{
		pages: map[string]string{
			"https://www.jobs.ch/en/vacancies/?page=1&term=koch": listing,
			"https://www.jobs.ch/en/vacancies/detail/a1/":        detailPage("Koch", "Bern"),
			"https://www.jobs.ch/en/vacancies/detail/a2/":        detailPage("Pilot", "Zurich"),
			// a3 stays 404 and must end up counted as failed.
		},
		fails: map[string]int{
			// a1 needs one retry before it succeeds.
			"https://www.jobs.ch/en/vacancies/detail/a1/": 1,
		},
	}

	cfg := testConfig(t)
	p, err := New(cfg, f, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	snap := p.Tracker().Snapshot()
	assert.Equal(t, int64(2), snap.Processed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(0), snap.Skipped)

	// CSV holds both processed records after the final flush.
	cf, err := os.Open(cfg.Sink.CSVPath)
	require.NoError(t, err)
	defer cf.Close()
	rows, err := csv.NewReader(cf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	got := map[string]bool{}
	for _, row := range rows[1:] {
		got[row[0]] = true
	}
	assert.True(t, got["a1"])
	assert.True(t, got["a2"])

	// Raw pages were archived and bundled.
	entries, err := os.ReadDir(cfg.Archive.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	_, err = os.Stat(cfg.Archive.BundlePath)
	assert.NoError(t, err)

	// Audit log carries one terminal event per job.
	audit, err := os.ReadFile(cfg.Progress.AuditLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "event=failed")
	assert.Contains(t, string(audit), "event=processed")
}

func TestPipelineAbortsOnFatal(t *testing.T) {
	t.Parallel()

	listing := `<html><body><script>{"meta":{"numPages":1}}</script>
<a href="/en/vacancies/detail/a1/">Koch</a></body></html>`

	// Listing resolves fine; the detail fetch hits an authorization
	// failure, which must abort the whole run.
	fatal := &fatalFetcher{inner: &siteFetcher{pages: map[string]string{
		"https://www.jobs.ch/en/vacancies/?page=1&term=koch": listing,
	}}}

	cfg := testConfig(t)
	p, err := New(cfg, fatal, zap.NewNop())
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, jobs.IsFatal(err))
}

type fatalFetcher struct {
	inner *siteFetcher
}

func (f *fatalFetcher) Fetch(ctx context.Context, rawURL string, h http.Header) (fetch.Page, error) {
	if pg, err := f.inner.Fetch(ctx, rawURL, h); err == nil {
		return pg, nil
	}
	return fetch.Page{}, &jobs.FatalError{Op: "proxy authorization", Err: fmt.Errorf("401 unauthorized")}
}
