package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"jobharvest/internal/jobs"
)

// CollyFetcher implements Fetcher using the Colly collector. It is the
// direct backend for sites that do not need server-side rendering.
type CollyFetcher struct {
	baseCollector *colly.Collector
	agents        *userAgentPool
	logger        *zap.Logger
}

// CollyConfig tunes the direct fetch backend.
type CollyConfig struct {
	UserAgents  []string
	Timeout     time.Duration
	Parallelism int
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg CollyConfig, logger *zap.Logger) (*CollyFetcher, error) {
	base := colly.NewCollector(colly.Async(true))
	base.AllowURLRevisit = true // revisits are retry attempts, dedup lives in the registry
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
	}); err != nil {
		return nil, err
	}

	return &CollyFetcher{
		baseCollector: base,
		agents:        newUserAgentPool(cfg.UserAgents),
		logger:        logger,
	}, nil
}

// Fetch retrieves a page via the configured Colly collector.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string, headers http.Header) (Page, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	start := time.Now()
	collector.OnRequest(func(r *colly.Request) {
		for k, vs := range headers {
			for _, v := range vs {
				r.Headers.Add(k, v)
			}
		}
		if ua := f.agents.pick(); ua != "" {
			r.Headers.Set("User-Agent", ua)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{page: Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte{}, r.Body...),
			Duration:   time.Since(start),
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{err: &jobs.TransportError{URL: rawURL, StatusCode: status, Err: err}})
	})

	if err := collector.Visit(rawURL); err != nil {
		return Page{}, &jobs.TransportError{URL: rawURL, Err: err}
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		return res.page, res.err
	default:
		return Page{}, &jobs.TransportError{URL: rawURL, Err: errors.New("colly fetch produced no result")}
	}
}

type fetchResult struct {
	page Page
	err  error
}
