package httpx

import (
    "net"
    "net/http"
    "time"
)

// DefaultUserAgent is sent when a request carries none.
const DefaultUserAgent = "pricesync/1.0"

// Client is the outbound HTTP client for the price feed. The feed talks to a
// single upstream host at a steady cadence, so the transport keeps one warm
// connection per host for at least one poll interval.
// It satisfies the HTTPClient interfaces of the feed clients.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
}

type Option func(*settings)

type settings struct {
    idleTimeout time.Duration
    userAgent   string
    headers     map[string]string
}

// WithIdleTimeout keeps idle connections for d. Pass something longer than
// the poll interval so consecutive polls reuse the connection.
func WithIdleTimeout(d time.Duration) Option {
    return func(s *settings) {
        if d > 0 { s.idleTimeout = d }
    }
}

func WithUserAgent(ua string) Option {
    return func(s *settings) { s.userAgent = ua }
}

// WithHeader adds a default header applied to requests that do not set it.
func WithHeader(key, value string) Option {
    return func(s *settings) { s.headers[key] = value }
}

// New builds a client whose whole exchange, including reading the body, is
// bounded by timeout.
func New(timeout time.Duration, opts ...Option) *Client {
    s := settings{
        idleTimeout: 90 * time.Second,
        userAgent:   DefaultUserAgent,
        headers:     map[string]string{},
    }
    for _, opt := range opts { opt(&s) }

    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          2,
        MaxIdleConnsPerHost:   2,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       s.idleTimeout,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: timeout,
    }
    return &Client{
        HTTP:      &http.Client{Timeout: timeout, Transport: transport},
        UserAgent: s.userAgent,
        Headers:   s.headers,
    }
}

// Do fills in the default User-Agent and headers without overriding values
// already set on req.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req)
}
