package services_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"reelup/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPartUploadFailed, "upload", "put part", "part 2", base)
	if !errors.Is(err, services.ErrPartUploadFailed) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"upload", "put part", "part 2"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrServerError) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err)
	}
}

func TestNewAPIErrorClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{400, services.ErrBadRequest},
		{403, services.ErrBadRequest},
		{404, services.ErrNotFound},
		{500, services.ErrServerError},
		{503, services.ErrServerError},
	}
	for _, tt := range tests {
		err := services.NewAPIError("POST", "/merge_parts", tt.status, " oops ")
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.want, err.Kind)
		}
		if !strings.HasSuffix(err.Error(), ": oops") {
			t.Fatalf("expected trimmed body in %q", err.Error())
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", services.NewAPIError("PUT", "/p", 502, ""), true},
		{"throttled", services.NewAPIError("PUT", "/p", 429, ""), true},
		{"request timeout", services.NewAPIError("PUT", "/p", 408, ""), true},
		{"bad request", services.NewAPIError("PUT", "/p", 400, ""), false},
		{"not found", services.NewAPIError("PUT", "/p", 404, ""), false},
		{"wrapped server error", fmt.Errorf("upload: %w", services.NewAPIError("PUT", "/p", 500, "")), true},
		{"transport", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"cancel marker", services.ErrCancelled, false},
		{"unreadable", services.Wrap(services.ErrFileUnreadable, "upload", "open", "", errors.New("eacces")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
