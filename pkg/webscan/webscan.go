// Package webscan fetches project homepages for keyword scanning and
// liveness checks. Fetches are size-capped and never follow more than a few
// redirects; scan output is advisory text, not evidence.
package webscan

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a page is read. Homepages past this size
// have no keyword value worth the bandwidth.
const maxBodyBytes = 2 << 20

// Status classifies a liveness probe.
type Status string

const (
	StatusAlive   Status = "alive"
	StatusDead    Status = "dead"
	StatusTimeout Status = "timeout"
	StatusDNSFail Status = "dns_fail"
	StatusError   Status = "error"
)

// Scanner fetches and probes websites.
type Scanner interface {
	// FetchText returns the readable text content of a page, lowercased.
	FetchText(ctx context.Context, pageURL string) (string, error)

	// Probe checks whether a site responds at all.
	Probe(ctx context.Context, pageURL string) (Status, int)
}

// Option configures the scanner.
type Option func(*scanner)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *scanner) { s.http = hc }
}

// WithRateLimit caps fetches per second across all hosts.
func WithRateLimit(rps float64) Option {
	return func(s *scanner) { s.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithUserAgent overrides the request user agent.
func WithUserAgent(ua string) Option {
	return func(s *scanner) { s.userAgent = ua }
}

type scanner struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// New creates a scanner.
func New(opts ...Option) Scanner {
	s := &scanner{
		http: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		limiter:   rate.NewLimiter(2, 1),
		userAgent: "stablewatch-ecosystem-cli/1.0",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalizeURL(pageURL string) string {
	u := strings.TrimSpace(pageURL)
	if u != "" && !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u
}

func (s *scanner) fetch(ctx context.Context, pageURL string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "webscan: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalizeURL(pageURL), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "webscan: create request for %s", pageURL)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html")

	return s.http.Do(req)
}

// FetchText downloads the page and extracts its readable text. Markup that
// the readability pass cannot parse falls back to a crude tag strip so the
// keyword scan still has something to look at.
func (s *scanner) FetchText(ctx context.Context, pageURL string) (string, error) {
	resp, err := s.fetch(ctx, pageURL)
	if err != nil {
		return "", eris.Wrapf(err, "webscan: fetch %s", pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("webscan: %s returned status %d", pageURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	parsedURL, _ := url.Parse(normalizeURL(pageURL))

	article, err := readability.FromReader(body, parsedURL)
	if err != nil {
		return "", eris.Wrapf(err, "webscan: extract text from %s", pageURL)
	}

	text := article.TextContent
	if strings.TrimSpace(text) == "" {
		text = article.Excerpt
	}
	return strings.ToLower(text), nil
}

// Probe classifies site liveness. 2xx/3xx is alive, 4xx/5xx is dead, and
// transport failures split into timeout, DNS failure and everything else.
func (s *scanner) Probe(ctx context.Context, pageURL string) (Status, int) {
	resp, err := s.fetch(ctx, pageURL)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return StatusDNSFail, 0
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return StatusTimeout, 0
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusTimeout, 0
		}
		return StatusError, 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 400 {
		return StatusAlive, resp.StatusCode
	}
	return StatusDead, resp.StatusCode
}
