package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty for HTTP requests to external panels and gateways.
// Transient failures (network errors, 5xx, 429) are retried by resty with
// backoff; other non-2xx responses come back as *StatusError without retrying.
type Client struct {
	r *resty.Client
}

// New creates a new HTTP client with sensible defaults.
func New() *Client {
	r := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(shouldRetry)

	return &Client{r: r}
}

// WithTimeout sets a custom per-attempt timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.r.SetTimeout(d)
	}
	return c
}

// WithRetry overrides the retry budget and backoff bounds.
func (c *Client) WithRetry(retries int, wait, maxWait time.Duration) *Client {
	c.r.SetRetryCount(retries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(maxWait)
	return c
}

// WithBaseURL sets the base URL for relative request paths.
func (c *Client) WithBaseURL(url string) *Client {
	c.r.SetBaseURL(url)
	return c
}

// WithBearerToken sets a bearer token for authentication.
func (c *Client) WithBearerToken(token string) *Client {
	c.r.SetAuthToken(token)
	return c
}

// WithHeader sets a custom header.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// WithInsecureSkipVerify disables TLS verification.
func (c *Client) WithInsecureSkipVerify() *Client {
	c.r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Retryable reports whether err belongs to a transient failure class.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type idempotentKey struct{}

// Idempotent marks ctx so POST and PATCH requests made with it may be retried.
func Idempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

type authKey struct{}

// WithAuthToken attaches a bearer token to requests made with ctx. It takes
// precedence over the client-wide token and is safe for rotating tokens.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, authKey{}, token)
}

// shouldRetry retries network errors, 5xx and 429. POST and PATCH are only
// retried when their context was marked with Idempotent.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil {
		return false
	}
	ctx := resp.Request.Context()
	if ctx.Err() != nil || !canRetry(ctx, resp.Request.Method) {
		return false
	}
	if err != nil {
		return Retryable(err)
	}
	code := resp.StatusCode()
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func canRetry(ctx context.Context, method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	marked, _ := ctx.Value(idempotentKey{}).(bool)
	return marked
}

// Do sends a request with an optional JSON body and returns the response body.
func (c *Client) Do(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	return c.do(ctx, method, url, func(req *resty.Request) {
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}
	})
}

func (c *Client) do(ctx context.Context, method, url string, prepare func(*resty.Request)) ([]byte, error) {
	req := c.r.R().SetContext(ctx)
	if token, ok := ctx.Value(authKey{}).(string); ok && token != "" {
		req.SetAuthToken(token)
	}
	prepare(req)

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return nil, &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode(), Body: resp.Body()}
	}
	return resp.Body(), nil
}

// Get sends a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// Post sends a POST request with JSON body.
func (c *Client) Post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, url, body)
}

// PostForm sends a POST request with form data.
func (c *Client) PostForm(ctx context.Context, url string, data map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, func(req *resty.Request) {
		req.SetFormData(data)
	})
}

// Put sends a PUT request with JSON body.
func (c *Client) Put(ctx context.Context, url string, body interface{}) ([]byte, error) {
	return c.Do(ctx, http.MethodPut, url, body)
}

// Patch sends a PATCH request with JSON body.
func (c *Client) Patch(ctx context.Context, url string, body interface{}) ([]byte, error) {
	return c.Do(ctx, http.MethodPatch, url, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, url, nil)
}

// Raw returns the underlying resty client for advanced usage.
func (c *Client) Raw() *resty.Client {
	return c.r
}
