package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Authentication failures.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnsupportedProvider = errors.New("unsupported login provider")
	ErrNetworkUnreachable  = errors.New("network unreachable")
)

// Service API failures.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrServerError = errors.New("server error")
	ErrNotFound    = errors.New("not found")
)

// Local file and transfer failures.
var (
	ErrFileUnreadable   = errors.New("file unreadable")
	ErrPartUploadFailed = errors.New("part upload failed")
)

var (
	ErrCancelled        = errors.New("cancelled")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above; both the marker and err stay reachable via errors.Is.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrServerError
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// APIError is a non-2xx response from the asset service. It unwraps to one of
// ErrBadRequest, ErrNotFound or ErrServerError.
type APIError struct {
	Kind   error
	Status int
	Method string
	Path   string
	Body   string
}

// NewAPIError classifies an HTTP failure by status code.
func NewAPIError(method, path string, status int, body string) *APIError {
	kind := ErrBadRequest
	switch {
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 500:
		kind = ErrServerError
	}
	return &APIError{Kind: kind, Status: status, Method: method, Path: path, Body: strings.TrimSpace(body)}
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.Kind }

// Retryable reports whether an upload step that failed with err may succeed
// if attempted again. Client errors, unreadable files and cancellation are
// final; server errors, throttling, timeouts and transport failures are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return false
	}
	if errors.Is(err, ErrFileUnreadable) || errors.Is(err, ErrNotAuthenticated) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return errors.Is(apiErr.Kind, ErrServerError)
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
