package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when polling many nodes
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
	defaultTimeout             = 10 * time.Second
)

// ErrStatus is wrapped by [Client.GetJSON] when the backend answers with a
// non-2xx status code.
var ErrStatus = errors.New("unexpected http status")

// Request describes one HTTP call made by [Client].
type Request struct {
	// Method defaults to GET.
	Method string

	URL     string
	Headers map[string]string

	// Username and Password enable basic auth when Username is set.
	Username string
	Password string

	// Timeout bounds the whole request. Defaults to 10 seconds.
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if the request failed before
	// a response arrived.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any transport error. nil means a response was read,
	// whatever its status code.
	Error error
}

// Client is an HTTP client tuned for polling health and stats endpoints.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so different backends can have different timeouts. Response bodies are
// limited to 1MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new polling [Client] with pooled connections.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Do performs req and returns a structured [Response].
//
// Do always returns a Response; errors are captured in the Error field so
// callers that classify responses (such as health extractors) can look at
// latency and status code even on failure.
func (c *Client) Do(ctx context.Context, req Request) Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Get performs req and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	resp := c.Do(ctx, req)
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, req.URL)
	}
	return resp.Body, nil
}

// GetJSON performs req and decodes a 2xx JSON body into v.
func (c *Client) GetJSON(ctx context.Context, req Request, v any) error {
	body, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL, err)
	}
	return nil
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
