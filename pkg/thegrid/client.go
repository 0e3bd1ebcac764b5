// Package thegrid is a client for The Grid, the GraphQL registry of
// blockchain-ecosystem projects that records are matched against.
package thegrid

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/stablewatch/ecosystem-cli/internal/resilience"
)

const defaultBaseURL = "https://api.thegrid.id/graphql"

// Client exposes the registry operations the matcher needs.
type Client interface {
	// SearchProfiles returns profiles whose name contains the given text.
	SearchProfiles(ctx context.Context, name string) ([]Profile, error)

	// SearchByURL returns profiles and products whose main URL contains
	// the given domain.
	SearchByURL(ctx context.Context, domain string) ([]Profile, []Product, error)

	// RootBySlug resolves a registry root by its slug.
	RootBySlug(ctx context.Context, slug string) (*Root, error)

	// RootByID resolves a registry root by its id.
	RootByID(ctx context.Context, id string) (*Root, error)

	// ListProfiles pages through all profiles for offline index building.
	ListProfiles(ctx context.Context, limit, offset int) ([]Profile, error)

	// ListProducts pages through all products for offline index building.
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default GraphQL endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second against the registry.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a registry client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("thegrid", "graphql")
	return c
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// query posts one GraphQL document and unmarshals the data payload into out.
// Transient HTTP failures retry with backoff; GraphQL errors never do.
func (c *httpClient) query(ctx context.Context, doc string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: doc, Variables: vars})
	if err != nil {
		return eris.Wrap(err, "thegrid: marshal request")
	}

	data, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "thegrid: rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "thegrid: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "thegrid: send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "thegrid: read response")
		}

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.ClassifyHTTPStatus(
				eris.Errorf("thegrid: unexpected status %d: %s", resp.StatusCode, string(respBody)),
				resp.StatusCode)
		}

		var gr gqlResponse
		if err := json.Unmarshal(respBody, &gr); err != nil {
			return nil, eris.Wrap(err, "thegrid: unmarshal response")
		}
		if len(gr.Errors) > 0 {
			return nil, eris.Errorf("thegrid: graphql error: %s", gr.Errors[0].Message)
		}
		return gr.Data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "thegrid: unmarshal data")
	}
	return nil
}

func (c *httpClient) SearchProfiles(ctx context.Context, name string) ([]Profile, error) {
	var out struct {
		Profiles []Profile `json:"profiles"`
	}
	vars := map[string]any{"pattern": "%" + escapeLike(name) + "%", "limit": 25}
	if err := c.query(ctx, searchProfilesQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

func (c *httpClient) SearchByURL(ctx context.Context, domain string) ([]Profile, []Product, error) {
	var out struct {
		Profiles []Profile `json:"profiles"`
		Products []Product `json:"products"`
	}
	vars := map[string]any{"pattern": "%" + escapeLike(domain) + "%", "limit": 25}
	if err := c.query(ctx, searchByURLQuery, vars, &out); err != nil {
		return nil, nil, err
	}
	return out.Profiles, out.Products, nil
}

func (c *httpClient) RootBySlug(ctx context.Context, slug string) (*Root, error) {
	var out struct {
		Roots []Root `json:"roots"`
	}
	if err := c.query(ctx, rootBySlugQuery, map[string]any{"slug": slug}, &out); err != nil {
		return nil, err
	}
	if len(out.Roots) == 0 {
		return nil, nil
	}
	return &out.Roots[0], nil
}

func (c *httpClient) RootByID(ctx context.Context, id string) (*Root, error) {
	var out struct {
		Roots []Root `json:"roots"`
	}
	if err := c.query(ctx, rootByIDQuery, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if len(out.Roots) == 0 {
		return nil, nil
	}
	return &out.Roots[0], nil
}

func (c *httpClient) ListProfiles(ctx context.Context, limit, offset int) ([]Profile, error) {
	var out struct {
		Profiles []Profile `json:"profiles"`
	}
	vars := map[string]any{"limit": limit, "offset": offset}
	if err := c.query(ctx, listProfilesQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

func (c *httpClient) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	var out struct {
		Products []Product `json:"products"`
	}
	vars := map[string]any{"limit": limit, "offset": offset}
	if err := c.query(ctx, listProductsQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// escapeLike neutralizes Hasura _ilike wildcards in user-supplied text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
