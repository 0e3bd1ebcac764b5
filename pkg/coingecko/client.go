// Package coingecko is a client for the CoinGecko public API, used to
// confirm a project's website and on-chain presence via its token listing.
package coingecko

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

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Client exposes the CoinGecko operations the enrichment stage needs.
type Client interface {
	// Search looks up coins by free-text query.
	Search(ctx context.Context, query string) ([]CoinSummary, error)

	// Coin fetches one coin with its links and contract platforms.
	Coin(ctx context.Context, id string) (*Coin, error)
}

// CoinSummary is one search hit.
type CoinSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Coin is the detailed view of one listing.
type Coin struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	// Platforms maps chain id to contract address. A non-empty entry means
	// the token is deployed on that chain.
	Platforms map[string]string `json:"platforms"`

	Links struct {
		Homepage []string `json:"homepage"`
	} `json:"links"`
}

// Homepage returns the first non-empty homepage link.
func (c *Coin) Homepage() string {
	for _, h := range c.Links.Homepage {
		if h != "" {
			return h
		}
	}
	return ""
}

// OnPlatform reports whether the coin has a contract on the given chain id.
func (c *Coin) OnPlatform(chain string) bool {
	addr, ok := c.Platforms[chain]
	return ok && addr != ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithAPIKey sets the demo/pro API key header.
func WithAPIKey(key string) Option {
	return func(c *httpClient) { c.apiKey = key }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second. The public tier is strict, so the
// default stays well under it.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a CoinGecko client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(0.5), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("coingecko", "get")
	return c
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "coingecko: rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "coingecko: create request")
		}
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "coingecko: send request")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "coingecko: read response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.ClassifyHTTPStatus(
				eris.Errorf("coingecko: unexpected status %d for %s", resp.StatusCode, path),
				resp.StatusCode)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return eris.Wrapf(json.Unmarshal(body, out), "coingecko: unmarshal %s", path)
}

func (c *httpClient) Search(ctx context.Context, query string) ([]CoinSummary, error) {
	var out struct {
		Coins []CoinSummary `json:"coins"`
	}
	if err := c.get(ctx, "/search?query="+url.QueryEscape(query), &out); err != nil {
		return nil, err
	}
	return out.Coins, nil
}

func (c *httpClient) Coin(ctx context.Context, id string) (*Coin, error) {
	path := "/coins/" + url.PathEscape(id) +
		"?localization=false&tickers=false&market_data=false&community_data=false&developer_data=false"
	var out Coin
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
