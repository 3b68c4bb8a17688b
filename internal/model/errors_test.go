package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
			},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantCode   string
		wantStatus int
		wantIs     error
	}{
		{"not found", NewNotFoundError("product"), "NOT_FOUND", 404, ErrNotFound},
		{"validation", NewValidationError("size", "required"), "VALIDATION_ERROR", 400, ErrInvalidRequest},
		{"unauthorized", NewUnauthorizedError("expired"), "UNAUTHORIZED", 401, ErrUnauthorized},
		{"conflict", NewConflictError("already saved"), "CONFLICT", 409, ErrConflict},
		{"upstream", NewUpstreamError("storefront", errors.New("boom")), "UPSTREAM_ERROR", 502, ErrUpstreamError},
		{"rate limited", NewRateLimitError("storefront"), "RATE_LIMITED", 429, ErrRateLimited},
		{"login required", NewLoginRequiredError("wishlist"), "LOGIN_REQUIRED", 401, ErrLoginRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.wantStatus)
			}
			if !errors.Is(tt.err, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.wantIs)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("size", "size is required")
	if err.Message != "invalid size: size is required" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", NewUnauthorizedError("expired"), true},
		{"wrapped unauthorized", fmt.Errorf("add item: %w", NewUnauthorizedError("expired")), true},
		{"login required is not an auth failure", NewLoginRequiredError("wishlist"), false},
		{"upstream", NewUpstreamError("storefront", errors.New("502")), false},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthFailure(tt.err); got != tt.want {
				t.Errorf("IsAuthFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(NewRateLimitError("storefront")); got != "storefront rate limit exceeded, please retry later" {
		t.Errorf("UserMessage(rate limit) = %q", got)
	}
	wrapped := fmt.Errorf("toggle: %w", NewConflictError("already in wishlist"))
	if got := UserMessage(wrapped); got != "already in wishlist" {
		t.Errorf("UserMessage(wrapped) = %q", got)
	}
	if got := UserMessage(errors.New("dial tcp: refused")); got != "something went wrong, please try again" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}
