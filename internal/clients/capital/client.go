// Package capital provides a client for the Capital.com REST API
package capital

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

const (
	DefaultDemoURL   = "https://demo-api-capital.backend-capital.com"
	DefaultLiveURL   = "https://api-capital.backend-capital.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
	DefaultPageSize  = 500
	DefaultMaxDepth  = 3

	apiPrefix = "/api/v1"

	headerAPIKey        = "X-CAP-API-KEY"
	headerCST           = "CST"
	headerSecurityToken = "X-SECURITY-TOKEN"
)

// Client implements interfaces.CapitalClient
type Client struct {
	baseURLs   map[models.Environment]string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	nodeNames  map[models.Category]string
	pageSize   int
	maxDepth   int
	now        func() time.Time
}

var _ interfaces.CapitalClient = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL points both environments at one base URL (tests, proxies)
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURLs[models.EnvironmentDemo] = baseURL
		c.baseURLs[models.EnvironmentLive] = baseURL
	}
}

// WithEnvironmentURLs sets the demo and live base URLs
func WithEnvironmentURLs(demoURL, liveURL string) ClientOption {
	return func(c *Client) {
		if demoURL != "" {
			c.baseURLs[models.EnvironmentDemo] = demoURL
		}
		if liveURL != "" {
			c.baseURLs[models.EnvironmentLive] = liveURL
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the request ceiling in requests per second
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNodeNames maps categories to navigation node names
func WithNodeNames(names map[models.Category]string) ClientOption {
	return func(c *Client) {
		for k, v := range names {
			c.nodeNames[k] = v
		}
	}
}

// WithNavigation sets the page size and maximum sub-node depth of a category walk
func WithNavigation(pageSize, maxDepth int) ClientOption {
	return func(c *Client) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
		if maxDepth >= 0 {
			c.maxDepth = maxDepth
		}
	}
}

// WithClock overrides the time source used for session timestamps
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Capital.com client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURLs: map[models.Environment]string{
			models.EnvironmentDemo: DefaultDemoURL,
			models.EnvironmentLive: DefaultLiveURL,
		},
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    common.NewSilentLogger(),
		nodeNames: make(map[models.Category]string),
		pageSize:  DefaultPageSize,
		maxDepth:  DefaultMaxDepth,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-2xx API response
type APIError struct {
	StatusCode int
	Code       string // upstream errorCode, e.g. "error.invalid.details"
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Capital API error: %s (status: %d, endpoint: %s)", e.Code, e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("Capital API error: %s (status: %d, endpoint: %s)", http.StatusText(e.StatusCode), e.StatusCode, e.Endpoint)
}

// Unauthorized reports whether the API rejected the credentials or tokens.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	header http.Header
	env    models.Environment
}

// do performs a rate-limited request and returns the response headers and body.
func (c *Client) do(ctx context.Context, r request) (http.Header, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	base, ok := c.baseURLs[r.env]
	if !ok || base == "" {
		return nil, nil, fmt.Errorf("no base URL for environment %q", r.env)
	}

	reqURL := base + apiPrefix + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.logger.Debug().Str("method", r.method).Str("url", base+apiPrefix+r.path).Msg("Capital API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Endpoint: r.path}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Code = eb.ErrorCode
		}
		return resp.Header, nil, apiErr
	}

	return resp.Header, data, nil
}

// get performs an authenticated GET and decodes the JSON body into result.
// An authorization failure is reported as ErrSessionExpired.
func (c *Client) get(ctx context.Context, sess *models.Session, path string, query url.Values, result interface{}) error {
	if !sess.Valid() {
		return fmt.Errorf("%w: no session tokens", interfaces.ErrSessionExpired)
	}

	_, data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   path,
		query:  query,
		header: sessionHeader(sess),
		env:    sess.Environment,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return fmt.Errorf("%w: %w", interfaces.ErrSessionExpired, err)
		}
		return err
	}

	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func sessionHeader(sess *models.Session) http.Header {
	h := http.Header{}
	h.Set(headerCST, sess.CST)
	h.Set(headerSecurityToken, sess.SecurityToken)
	return h
}
