package provider

import (
	"context"
	"time"
)

// HandleStatus is the state of one platform-side media-ingestion handle.
type HandleStatus string

const (
	HandlePending    HandleStatus = "pending"
	HandleProcessing HandleStatus = "processing"
	HandleFinished   HandleStatus = "finished"
	HandleError      HandleStatus = "error"
)

// PollFunc performs one status check against the platform. It returns the
// current handle status and a detail string for error reporting.
type PollFunc func(ctx context.Context) (HandleStatus, string, error)

// Watcher drives a media-ingestion handle to a terminal status. Every loop
// is bounded by the deadline: a handle either finishes, errors, or is
// converted into a ProcessingTimeoutError. It never blocks indefinitely.
type Watcher struct {
	Platform string
	Interval time.Duration
	Deadline time.Duration
}

// Wait polls until the handle reaches a terminal status or the deadline
// passes. Transport errors from poll abort immediately so the job-level
// retry policy can take over.
func (w Watcher) Wait(ctx context.Context, handleID string, poll PollFunc) error {
	deadline := time.Now().Add(w.Deadline)

	for {
		status, detail, err := poll(ctx)
		if err != nil {
			return err
		}

		switch status {
		case HandleFinished:
			return nil
		case HandleError:
			return &ProcessingError{Platform: w.Platform, HandleID: handleID, Detail: detail}
		}

		if !time.Now().Add(w.Interval).Before(deadline) {
			return &ProcessingTimeoutError{Platform: w.Platform, HandleID: handleID, Deadline: w.Deadline}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Interval):
		}
	}
}
