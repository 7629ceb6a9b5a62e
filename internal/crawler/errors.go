package crawler

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every pipeline stage.
var (
	// ErrRetryableFetch marks transient network or timeout failures.
	ErrRetryableFetch = errors.New("retryable fetch error")
	// ErrAdapterExhausted marks structural failures that end the current term.
	ErrAdapterExhausted = errors.New("adapter exhausted")
	// ErrBackoffTripped is returned once a host exceeded its failure streak.
	ErrBackoffTripped = errors.New("host failure threshold reached")
	// ErrCheckpointIO wraps checkpoint write and read failures.
	ErrCheckpointIO = errors.New("checkpoint io error")
	// ErrFatalConfig aborts a run before any work starts.
	ErrFatalConfig = errors.New("fatal config error")
	// ErrCapabilityLost marks the loss of the fetch or automation capability itself.
	ErrCapabilityLost = errors.New("fetch capability lost")
)

// FetchError describes a failed fetch. Retryable failures match ErrRetryableFetch.
type FetchError struct {
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRetryableFetch) see through retryable fetch errors.
func (e *FetchError) Is(target error) bool {
	return target == ErrRetryableFetch && e.Retryable
}

// Exhausted builds an ErrAdapterExhausted for a source and term.
func Exhausted(sourceID string, term SearchTerm, reason string) error {
	return fmt.Errorf("%s %q: %s: %w", sourceID, term.Label(), reason, ErrAdapterExhausted)
}

// EndsTerm reports whether err means the current (source, term) pair should be abandoned.
func EndsTerm(err error) bool {
	return errors.Is(err, ErrAdapterExhausted) || errors.Is(err, ErrBackoffTripped)
}

// Fatal reports whether err must abort the whole run.
func Fatal(err error) bool {
	return errors.Is(err, ErrFatalConfig) || errors.Is(err, ErrCapabilityLost)
}
