package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned before any network call when a key, URL or model is missing.
	ErrNotConfigured = errors.New("embedding source not configured")
	// ErrUnknownSource is returned for a source with no registered factory.
	ErrUnknownSource = errors.New("unknown embedding source")
	// ErrRequestFailed matches every RequestError.
	ErrRequestFailed = errors.New("embedding request failed")
)

// RequestError describes a failed call to a remote embedding API.
type RequestError struct {
	Source     string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s embedding request failed", e.Source)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRequestFailed) work for every RequestError.
func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }

func notConfigured(source, what string) error {
	return fmt.Errorf("%w: %s requires %s", ErrNotConfigured, source, what)
}

func badResponse(source, format string, args ...any) error {
	return &RequestError{Source: source, Message: fmt.Sprintf(format, args...)}
}
