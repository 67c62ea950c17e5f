package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common application errors
var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrInternalServerError = errors.New("internal server error")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrGatewayTimeout      = errors.New("gateway timeout")
)

// APIError represents a structured API error response
type APIError struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	Errors    []ValidationError `json:"errors"`
	Timestamp string            `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// NewAPIError creates a new APIError
func NewAPIError(status int, title, detail, instance string) *APIError {
	return &APIError{
		Type:      fmt.Sprintf("https://api.wanderlust.local/problems/%s", kebabCase(title)),
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// AddValidationError adds a validation error to the API error
func (e *APIError) AddValidationError(field, code, message string) {
	if e.Errors == nil {
		e.Errors = make([]ValidationError, 0)
	}
	e.Errors = append(e.Errors, ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
	})
}

// kebabCase converts a string to kebab-case
func kebabCase(s string) string {
	allUpper := true
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			allUpper = false
			break
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}

	// acronyms stay as they are
	if allUpper && hasLetter && !strings.ContainsAny(s, " _") {
		return s
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r == ' ' || r == '_':
			b.WriteByte('-')
		case i > 0 && r >= 'A' && r <= 'Z' && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
