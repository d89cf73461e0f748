package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPollTimeout indicates the polling loop exhausted its attempt budget
	// without observing a terminal status. Distinct from a backend-reported
	// failure so the user sees "timed out, try again" rather than a generic
	// provider error.
	ErrPollTimeout = errors.New("generation timed out waiting for a result")

	// ErrCanceled indicates the caller requested cancellation. The remote job
	// is not aborted; it is short-lived enough that letting it finish on the
	// backend is an accepted tradeoff.
	ErrCanceled = errors.New("generation canceled")

	// ErrAuthRequired indicates no user session exists. Cloud stages are
	// skipped rather than failed when this is returned.
	ErrAuthRequired = errors.New("sign-in required")
)

// TransportError wraps a network-level failure (connect, TLS, timeout at the
// HTTP layer). It is retried only where a component explicitly specifies a
// retry policy, never silently.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is a terminal failed/canceled status reported by the inference
// backend, carried with the backend-supplied reason. Never retried.
type BackendError struct {
	Status JobStatus
	Reason string
}

func (e *BackendError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("backend reported %s", e.Status)
	}
	return fmt.Sprintf("backend reported %s: %s", e.Status, e.Reason)
}

// RateLimitError reports a client-side throttle rejection together with the
// time remaining until the window resets.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// UploadError means the CDN upload exhausted its retries. Non-fatal to a run:
// the orchestrator degrades to a local-only result.
type UploadError struct {
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("cdn upload failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// StorageError means the object-store write or list failed. Writes are
// all-or-nothing; a StorageError implies no partial object landed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("object store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
