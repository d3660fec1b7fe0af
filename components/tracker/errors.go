package tracker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrForbidden is returned when the caller's role may not perform an operation.
	ErrForbidden = errors.New("tracker: operation not permitted for role")
	// ErrWidgetLocked is returned when a non-admin tries to remove a locked widget.
	ErrWidgetLocked = errors.New("tracker: widget is locked")
	// ErrIndexOutOfRange is returned for widget positions outside the store.
	ErrIndexOutOfRange = errors.New("tracker: widget index out of range")
	// ErrInvalidCredentials is returned by login when authentication fails.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrMissingToken is reported before any request when no token is configured.
	ErrMissingToken = &ConfigurationError{Message: "Missing Basic token"}
	// ErrUnauthenticated is returned when an operation needs a signed-in session.
	ErrUnauthenticated = errors.New("tracker: login required")
	// ErrWidgetNotFound is returned when no widget matches an id.
	ErrWidgetNotFound = errors.New("tracker: widget not found")

	errMissingKeyValueStore = errors.New("tracker: key value store not configured")
	errMissingFetcher       = errors.New("tracker: status fetcher not configured")
	errNotStarted           = errors.New("tracker: dashboard not started")
)

// ConfigurationError reports invalid local configuration detected before a request.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// TransportError reports a network failure or a non-2xx response.
type TransportError struct {
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return "request failed"
	}
	detail := strings.TrimSpace(e.Body)
	if detail == "" {
		detail = e.StatusText
	}
	return fmt.Sprintf("HTTP %d - %s", e.Status, detail)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError reports malformed JSON from the remote API or an imported file.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse error: %v", e.Err)
	}
	return fmt.Sprintf("%s: parse error: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// errorMessage derives the per-widget error text shown next to a badge.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Message
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
