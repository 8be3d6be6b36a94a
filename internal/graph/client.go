package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Graph API root that relative paths resolve against.
	DefaultBaseURL  = "https://graph.microsoft.com/v1.0"
	userAgent       = "onedrive-proxy/0.1"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Request describes one call through Client.API. Only URL is required.
type Request struct {
	// Method defaults to GET. A GET that carries a body is sent as POST.
	Method string
	// URL is absolute, or relative to the client's base URL.
	URL string
	// Params are URL-encoded and appended to the query string.
	Params map[string]string
	// Form is sent form-url-encoded. Mutually exclusive with Body.
	Form map[string]string
	// Body is streamed unmodified, e.g. upload content.
	Body io.Reader
	// ContentType applies to Body. Defaults to application/octet-stream.
	ContentType string
	// ContentLength is the size of Body when the reader does not reveal it,
	// e.g. an incoming server request body. Zero or negative means unknown.
	ContentLength int64
	// Token is sent as a bearer credential when non-empty. Token endpoint
	// calls leave it empty.
	Token string
}

// Client is an HTTP client for the Microsoft Graph API and the Microsoft
// identity platform token endpoint. It performs exactly one HTTP exchange per
// call; there is no retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Graph API client.
// baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    trimSlashes(baseURL),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// API executes req and returns the decoded JSON response body.
//
// A 204 (or any 2xx with an empty body) yields {"status_code": N}. Non-2xx
// responses return a *GraphError carrying the method, URL, status and body.
func (c *Client) API(ctx context.Context, req Request) (json.RawMessage, error) {
	target := c.resolve(req.URL)
	if len(req.Params) > 0 {
		target = appendQuery(target, encodeParams(req.Params))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType := requestBody(req)
	if body != nil && method == http.MethodGet {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating request: %w", err)
	}

	if req.ContentLength > 0 && httpReq.ContentLength <= 0 {
		httpReq.ContentLength = req.ContentLength
	}

	httpReq.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("graph: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)

	c.logger.Debug("graph request",
		slog.String("method", method),
		slog.String("url", redactQuery(target)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if readErr != nil {
			data = []byte("(failed to read response body)")
		}

		return nil, &GraphError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("request-id"),
			Message:    string(data),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	if readErr != nil {
		return nil, fmt.Errorf("graph: reading response from %s: %w", target, readErr)
	}

	if resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(data))) == 0 {
		return statusOnly(resp.StatusCode), nil
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("graph: response from %s is not valid JSON", target)
	}

	return json.RawMessage(data), nil
}

// resolve joins a relative URL onto the base URL. Absolute URLs pass through.
func (c *Client) resolve(u string) string {
	if isAbsolute(u) {
		return u
	}

	return c.baseURL + "/" + trimSlashes(u)
}

// requestBody picks the wire body for req. Form takes precedence over Body.
func requestBody(req Request) (io.Reader, string) {
	if req.Form != nil {
		return strings.NewReader(encodeParams(req.Form)), contentTypeForm
	}

	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}

		return req.Body, ct
	}

	return nil, ""
}

// encodeParams form-encodes m with keys in sorted order.
func encodeParams(m map[string]string) string {
	v := make(url.Values, len(m))
	for k, val := range m {
		v.Set(k, val)
	}

	return v.Encode()
}

func statusOnly(code int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"status_code":%d}`, code))
}

func isAbsolute(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}

func appendQuery(target, query string) string {
	if strings.Contains(target, "?") {
		return target + "&" + query
	}

	return target + "?" + query
}

// redactQuery drops the query string for logging; paging cursors and
// search terms stay out of the logs.
func redactQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}

	return u
}

// trimSlashes strips leading and trailing '/' characters.
func trimSlashes(s string) string {
	return strings.Trim(s, "/")
}
