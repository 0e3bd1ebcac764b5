// Package defillama is a client for the DefiLlama public API, used to check
// which tokens a protocol actually holds in its TVL breakdown.
package defillama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/stablewatch/ecosystem-cli/internal/resilience"
)

const defaultBaseURL = "https://api.llama.fi"

// Client exposes the DefiLlama operations the enrichment stage needs.
type Client interface {
	// Protocols lists every protocol DefiLlama tracks.
	Protocols(ctx context.Context) ([]ProtocolSummary, error)

	// Protocol fetches one protocol with its token-level TVL breakdown.
	Protocol(ctx context.Context, slug string) (*Protocol, error)
}

// ProtocolSummary is one row of the protocol index.
type ProtocolSummary struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	URL      string   `json:"url"`
	Category string   `json:"category"`
	Chains   []string `json:"chains"`
}

// Protocol is the detailed view with token holdings over time.
type Protocol struct {
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Category    string          `json:"category"`
	Chains      []string        `json:"chains"`
	TokensInUSD []TokenSnapshot `json:"tokensInUsd"`
}

// TokenSnapshot is the USD value held per token symbol at one point in time.
type TokenSnapshot struct {
	Date   int64              `json:"date"`
	Tokens map[string]float64 `json:"tokens"`
}

// CurrentTokens returns the most recent token holdings, or nil when the
// protocol has no token-level breakdown.
func (p *Protocol) CurrentTokens() map[string]float64 {
	if len(p.TokensInUSD) == 0 {
		return nil
	}
	return p.TokensInUSD[len(p.TokensInUSD)-1].Tokens
}

// HoldsAny reports whether the latest snapshot holds a meaningful balance of
// any alias, where meaningful means at least minUSD.
func (p *Protocol) HoldsAny(aliases map[string]struct{}, minUSD float64) bool {
	for symbol, usd := range p.CurrentTokens() {
		if usd < minUSD {
			continue
		}
		if _, ok := aliases[symbol]; ok {
			return true
		}
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a DefiLlama client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(2, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("defillama", "get")
	return c
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "defillama: rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "defillama: create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "defillama: send request")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "defillama: read response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.ClassifyHTTPStatus(
				eris.Errorf("defillama: unexpected status %d for %s", resp.StatusCode, path),
				resp.StatusCode)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return eris.Wrapf(json.Unmarshal(body, out), "defillama: unmarshal %s", path)
}

func (c *httpClient) Protocols(ctx context.Context) ([]ProtocolSummary, error) {
	var out []ProtocolSummary
	if err := c.get(ctx, "/protocols", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) Protocol(ctx context.Context, slug string) (*Protocol, error) {
	var out Protocol
	if err := c.get(ctx, "/protocol/"+url.PathEscape(slug), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
