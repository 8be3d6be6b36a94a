// Package graph provides an HTTP client for the Microsoft Graph API and the
// OAuth2 token endpoint, plus the drive-relative path builders the proxy uses.
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
	ErrEmptyToken   = errors.New("graph: token response has no access_token")
	ErrForeignPage  = errors.New("graph: page cursor does not point at the Graph API")
)

// GraphError wraps a sentinel error with the failed request and the raw
// response body.
type GraphError struct {
	Method     string
	URL        string
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is(); nil for unclassified codes
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: request %s %s error: HTTP %d (request-id: %s): %s",
			e.Method, e.URL, e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: request %s %s error: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
