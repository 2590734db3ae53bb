package provider

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced uniformly across platforms.
var (
	// ErrAuthExpired means the channel credential is no longer valid and the
	// connection must be re-authorized before any further attempt can succeed.
	ErrAuthExpired = errors.New("access token expired, reconnect required")

	// ErrPermissionDenied means the credential is valid but lacks the scope
	// or role needed for the operation.
	ErrPermissionDenied = errors.New("permission denied by platform")

	// ErrNotSupported is returned when a platform has no capability for the
	// requested operation.
	ErrNotSupported = errors.New("operation not supported by platform")
)

// RateLimitedError is a platform-side 429, distinct from the pipeline's own
// per-channel quota.
type RateLimitedError struct {
	Platform   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit hit, retry after %s", e.Platform, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit hit", e.Platform)
}

// ValidationError means the content or media violates a platform constraint.
// It is deterministic: the same input fails identically on every retry.
type ValidationError struct {
	Platform string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Platform, e.Reason)
}

// ProcessingError means the platform reported a failure while ingesting
// media asynchronously.
type ProcessingError struct {
	Platform string
	HandleID string
	Detail   string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s media processing failed (handle %s): %s", e.Platform, e.HandleID, e.Detail)
}

// ProcessingTimeoutError means a media-ingestion handle did not reach a
// terminal status before its deadline. Whether the platform later completed
// ingestion out-of-band is unknown.
type ProcessingTimeoutError struct {
	Platform string
	HandleID string
	Deadline time.Duration
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("%s media processing timed out after %s (handle %s)", e.Platform, e.Deadline, e.HandleID)
}

// Permanent reports whether an error is deterministic and can never succeed
// on retry. Transient network errors, platform 429s and processing
// failures/timeouts stay retryable.
func Permanent(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	return errors.Is(err, ErrAuthExpired) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotSupported)
}
