package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Category classifies a provider failure for users and for retry decisions.
type Category string

const (
	CategoryAuthentication Category = "AUTHENTICATION_ERROR"
	CategoryRateLimit      Category = "RATE_LIMIT_ERROR"
	CategoryServer         Category = "SERVER_ERROR"
	CategoryNetwork        Category = "NETWORK_ERROR"
	CategoryUnknown        Category = "UNKNOWN_ERROR"
)

// Retryable reports whether failures of category c may succeed on another attempt.
func (c Category) Retryable() bool {
	switch c {
	case CategoryRateLimit, CategoryServer, CategoryNetwork:
		return true
	}
	return false
}

// Error is a categorized provider failure. StatusCode is 0 when no response arrived.
type Error struct {
	StatusCode int
	Category   Category
	Message    string
	Err        error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Category, e.Message) }

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the call may be attempted again.
func (e *Error) Retryable() bool { return e.Category.Retryable() }

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable()
}

// CategoryOf extracts the category of err, CategoryUnknown for foreign errors.
func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryUnknown
}

// Categorize maps an HTTP status or transport error to a Category.
func Categorize(status int, err error) Category {
	switch {
	case status == http.StatusUnauthorized:
		return CategoryAuthentication
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= http.StatusInternalServerError:
		return CategoryServer
	case status == 0 && err != nil && isNetwork(err):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func isNetwork(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded)
}

func transportError(err error) *Error {
	return &Error{Category: Categorize(0, err), Message: err.Error(), Err: err}
}

func statusError(status int, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{StatusCode: status, Category: Categorize(status, nil), Message: msg}
}
