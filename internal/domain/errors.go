package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUpstream gateway unreachable or returned an error code.
	ErrUpstream = errors.New("upstream error")
	// ErrStaleData fewer data points than an evaluation requires.
	ErrStaleData = errors.New("stale data")
	// ErrConfiguration missing required credentials or identifiers.
	ErrConfiguration = errors.New("configuration error")
	// ErrConflict conditional state write lost a race.
	ErrConflict = errors.New("version conflict")
)

// UpstreamError failure reported by an exchange gateway.
type UpstreamError struct {
	Provider string
	Op       string
	Code     string
	Err      error
}

// NewUpstreamError wraps err as a gateway failure.
func NewUpstreamError(provider, op, code string, err error) *UpstreamError {
	return &UpstreamError{Provider: provider, Op: op, Code: code, Err: err}
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: code %s: %v", e.Provider, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// StaleData returns an ErrStaleData wrapped with context.
func StaleData(format string, args ...any) error {
	return errors.Wrapf(ErrStaleData, format, args...)
}
