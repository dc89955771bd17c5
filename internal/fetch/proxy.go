package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"jobharvest/internal/jobs"
)

// ProxyFetcher routes fetches through a rendering/anti-detection proxy
// service. The proxy renders JavaScript server-side, so no local
// browser is needed.
type ProxyFetcher struct {
	endpoint string
	apiKey   string
	renderJS bool
	client   *http.Client
	agents   *userAgentPool
	logger   *zap.Logger
}

// ProxyConfig tunes the proxy fetch backend.
type ProxyConfig struct {
	Endpoint   string
	APIKey     string
	RenderJS   bool
	UserAgents []string
	Timeout    time.Duration
}

// NewProxyFetcher constructs a proxy-backed Fetcher.
func NewProxyFetcher(cfg ProxyConfig, logger *zap.Logger) (*ProxyFetcher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("proxy endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("proxy api key is required")
	}
	return &ProxyFetcher{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		renderJS: cfg.RenderJS,
		client:   &http.Client{Timeout: cfg.Timeout},
		agents:   newUserAgentPool(cfg.UserAgents),
		logger:   logger,
	}, nil
}

// Fetch requests the target URL through the proxy service. A 401/403
// from the proxy itself means our authorization was rejected and the
// whole run should stop.
func (f *ProxyFetcher) Fetch(ctx context.Context, rawURL string, headers http.Header) (Page, error) {
	params := url.Values{}
	params.Set("api_key", f.apiKey)
	params.Set("url", rawURL)
	if f.renderJS {
		params.Set("render_js", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, &jobs.TransportError{URL: rawURL, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if ua := f.agents.pick(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, &jobs.TransportError{URL: rawURL, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Warn("close proxy response body", zap.Error(cerr))
		}
	}()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Page{}, &jobs.FatalError{
			Op:  "proxy authorization",
			Err: fmt.Errorf("proxy returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Page{}, &jobs.TransportError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, &jobs.TransportError{URL: rawURL, Err: err}
	}

	return Page{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}
