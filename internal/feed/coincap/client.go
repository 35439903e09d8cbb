package coincap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	baseURL = "https://api.coincap.io/v2"

	// DefaultAsset is the CoinCap asset id polled when none is configured.
	DefaultAsset = "bitcoin"

	// DefaultHistoryPoints is the number of one-minute samples requested
	// for the initial history series (about two hours).
	DefaultHistoryPoints = 120

	maxBodyBytes = 4 << 20
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("asset not found")
	ErrMalformed    = errors.New("malformed response body")
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=coincap_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the CoinCap REST API bound to a single asset.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// asset is the CoinCap asset id, e.g. "bitcoin".
	asset string
	// historyPoints is the length of the seed window in minutes.
	historyPoints int
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// now is used to compute the history window.
	now func() time.Time
}

// ClientOption is a configuration option for the CoinCap client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithAsset sets the asset id to poll.
func WithAsset(asset string) ClientOption {
	return func(c *Client) {
		if asset != "" {
			c.asset = asset
		}
	}
}

// WithHistoryPoints sets how many one-minute samples the history fetch spans.
func WithHistoryPoints(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.historyPoints = n
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClock overrides the clock used to build the history window.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a new CoinCap API client. The key is optional; CoinCap
// serves unauthenticated requests at a lower rate limit.
func NewClient(key string, options ...ClientOption) *Client {
	var client = &Client{
		baseURL:       baseURL,
		asset:         DefaultAsset,
		historyPoints: DefaultHistoryPoints,
		httpClient:    http.DefaultClient,
		header:        http.Header{},
		now:           time.Now,
	}
	if key != "" {
		client.header.Set("Authorization", "Bearer "+key)
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Name implements feed.Feed.
func (c *Client) Name() string { return "CoinCap:" + c.asset }

// get performs one GET request and returns the raw body of a 200 response.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized

	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.asset)

	case http.StatusTooManyRequests:
		return nil, ErrRateLimited

	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// parseDecimal accepts both quoted ("123.4") and bare numeric JSON values.
func parseDecimal(r gjson.Result) (decimal.Decimal, bool) {
	var raw string
	switch r.Type {
	case gjson.String:
		raw = r.Str
	case gjson.Number:
		raw = r.Raw
	default:
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
