package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrorType classifies scrape, discovery and monitoring failures
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeParsing    ErrorType = "parsing"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// ErrNotFound is returned by storages when a record does not exist
var ErrNotFound = errors.New("not found")

// ScrapingError is the single error type used across discovery, scraping and monitoring.
type ScrapingError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	URL        string    `json:"url,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Cause      error     `json:"-"`
}

func (e *ScrapingError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.URL != "" {
		b.WriteString(" (")
		b.WriteString(e.URL)
		b.WriteString(")")
	}
	return b.String()
}

func (e *ScrapingError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure should return the item to the queue
func (e *ScrapingError) Retryable() bool {
	return IsRetryable(e.Type)
}

// NewScrapingError builds a ScrapingError wrapping cause
func NewScrapingError(errType ErrorType, rawURL string, cause error) *ScrapingError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ScrapingError{
		Type:      errType,
		Message:   msg,
		URL:       rawURL,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewValidationError returns a validation-typed error with a formatted message
func NewValidationError(format string, args ...interface{}) *ScrapingError {
	return &ScrapingError{
		Type:      ErrorTypeValidation,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// NewStorageError wraps a backend failure
func NewStorageError(op string, cause error) *ScrapingError {
	return &ScrapingError{
		Type:      ErrorTypeStorage,
		Message:   fmt.Sprintf("%s: %v", op, cause),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ClassifyHTTPStatus maps a non-success HTTP status to an error. Returns nil for 2xx/3xx.
func ClassifyHTTPStatus(statusCode int, rawURL string) *ScrapingError {
	if statusCode < 400 {
		return nil
	}

	var errType ErrorType
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		errType = ErrorTypeAuth
	case statusCode == http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		errType = ErrorTypeTimeout
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		errType = ErrorTypeNotFound
	case statusCode >= 500:
		errType = ErrorTypeNetwork
	default:
		errType = ErrorTypeUnknown
	}

	return &ScrapingError{
		Type:       errType,
		Message:    http.StatusText(statusCode),
		URL:        rawURL,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
	}
}

// ClassifyError determines the ErrorType of an arbitrary error
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}

	var se *ScrapingError
	if errors.As(err, &se) {
		return se.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorTypeNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// AsScrapingError converts any error into a *ScrapingError, classifying it when needed
func AsScrapingError(err error, rawURL string) *ScrapingError {
	if err == nil {
		return nil
	}
	var se *ScrapingError
	if errors.As(err, &se) {
		if se.URL == "" {
			se.URL = rawURL
		}
		return se
	}
	return NewScrapingError(ClassifyError(err), rawURL, err)
}

// IsRetryable reports whether an error type is transient.
// auth, parsing, not_found and validation need intervention before another attempt.
func IsRetryable(errType ErrorType) bool {
	switch errType {
	case ErrorTypeAuth, ErrorTypeParsing, ErrorTypeNotFound, ErrorTypeValidation:
		return false
	default:
		return true
	}
}

// IsValidationError reports whether err is a caller error
func IsValidationError(err error) bool {
	return ClassifyError(err) == ErrorTypeValidation
}
