// Package httpx provides the tracked outbound HTTP client. Every call made
// through it appends exactly one API call event to the supplied sink,
// capturing request and response headers, bodies, status, and duration.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentd/pkg/config"
	"agentd/pkg/events"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
)

// Request is one tracked outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte // nil for body-less methods
}

// Response is the tracked call's outcome. Body is capped at the configured
// capture limit.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Client wraps an http.Client with event tracking. The underlying client and
// its connection pool are shared across requests; per-request state travels
// in the sink argument.
type Client struct {
	httpClient   *http.Client
	maxBodyBytes int64
	logger       *logx.Logger
	recorder     metrics.Recorder
}

// New creates a tracked client from configuration. recorder may be nil to
// disable metrics.
func New(cfg config.HTTPConfig, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxBodyBytes: maxBody,
		logger:       logx.NewLogger("httpx"),
		recorder:     recorder,
	}
}

// Do executes one outbound call and appends exactly one event to sink,
// whether the call succeeded or failed. A nil sink disables emission. The
// error return covers transport failures only; HTTP error statuses are
// returned in the Response for the caller to interpret.
func (c *Client) Do(ctx context.Context, req Request, sink *events.Sink) (*Response, error) {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return nil, fmt.Errorf("URL must start with http:// or https://, got %q", req.URL)
	}

	var bodyReader io.Reader = http.NoBody
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)

	if err != nil {
		c.logger.Warn("outbound %s %s failed after %v: %v", req.Method, req.URL, elapsed, err)
		c.recorder.ObserveHTTPCall(req.Method, 0, elapsed)
		c.appendEvent(sink, req, 0, nil, "Error: "+err.Error(), elapsed)
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, readErr := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBodyBytes))
	if readErr != nil {
		c.logger.Warn("outbound %s %s: body read failed: %v", req.Method, req.URL, readErr)
		c.recorder.ObserveHTTPCall(req.Method, httpResp.StatusCode, elapsed)
		c.appendEvent(sink, req, httpResp.StatusCode, flattenHeaders(httpResp.Header), "Error: "+readErr.Error(), elapsed)
		return nil, readErr
	}

	c.recorder.ObserveHTTPCall(req.Method, httpResp.StatusCode, elapsed)
	c.appendEvent(sink, req, httpResp.StatusCode, flattenHeaders(httpResp.Header), string(respBody), elapsed)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    flattenHeaders(httpResp.Header),
		Body:       respBody,
	}, nil
}

// Get executes a tracked GET request.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string, sink *events.Sink) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url, Headers: headers}, sink)
}

// Post executes a tracked POST request.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte, sink *events.Sink) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Headers: headers, Body: body}, sink)
}

func (c *Client) appendEvent(sink *events.Sink, req Request, statusCode int, respHeaders map[string]string, respBody string, elapsed time.Duration) {
	if sink == nil {
		return
	}
	reqBody := ""
	if len(req.Body) > 0 {
		reqBody = string(truncate(req.Body, c.maxBodyBytes))
	}
	sink.Append(events.NewAPICall(events.APICall{
		URL:                req.URL,
		RequestMethod:      req.Method,
		RequestHeaders:     req.Headers,
		RequestBody:        reqBody,
		ResponseHeaders:    respHeaders,
		ResponseStatusCode: statusCode,
		ResponseBody:       respBody,
		DurationMillis:     elapsed.Milliseconds(),
	}))
}

// flattenHeaders keeps the first value per header name.
func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name := range header {
		flat[name] = header.Get(name)
	}
	return flat
}

func truncate(b []byte, limit int64) []byte {
	if int64(len(b)) <= limit {
		return b
	}
	return b[:limit]
}
