// Package fetch abstracts page retrieval behind a narrow capability so
// the pipeline does not care whether pages come from a direct HTTP
// client or a rendering proxy service.
package fetch

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Page is the raw result of one fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata. Callers may
// pass extra headers; implementations add their own user agent.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers http.Header) (Page, error)
}

// userAgentPool hands out user agents round-robin so consecutive
// requests do not share a fingerprint.
type userAgentPool struct {
	agents []string
	next   atomic.Uint64
}

func newUserAgentPool(agents []string) *userAgentPool {
	return &userAgentPool{agents: append([]string(nil), agents...)}
}

func (p *userAgentPool) pick() string {
	if len(p.agents) == 0 {
		return ""
	}
	n := p.next.Add(1)
	return p.agents[int(n-1)%len(p.agents)]
}
