package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/postpilot/api/internal/model"
	"github.com/postpilot/api/internal/provider"
	"github.com/postpilot/api/internal/ratelimit"
	"github.com/postpilot/api/internal/store"
)

// ScheduleTracker is the slice of the schedule store the worker drives
// entries through.
type ScheduleTracker interface {
	Get(ctx context.Context, id string) (*model.ScheduleEntry, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	Requeue(ctx context.Context, id string, to model.ScheduleStatus) error
	RecordAttempt(ctx context.Context, id, lastError string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, lastError string) error
}

// Publisher runs one orchestrated publish attempt.
type Publisher interface {
	Publish(ctx context.Context, payload model.PublishJobPayload) (*model.PublishResult, error)
	RecordFailure(ctx context.Context, scheduleID string, cause error)
}

// DelayedEnqueuer re-adds quota-blocked jobs without consuming an attempt.
type DelayedEnqueuer interface {
	EnqueueDelayed(ctx context.Context, payload model.PublishJobPayload, delay time.Duration) (string, error)
}

// PublishWorker is the asynq handler executing publish jobs. Errors it
// returns feed the queue's retry policy; deterministic failures are wrapped
// in asynq.SkipRetry so a retry budget is never spent on an attempt that
// cannot succeed.
type PublishWorker struct {
	schedules ScheduleTracker
	publisher Publisher
	queue     DelayedEnqueuer
}

func NewPublishWorker(schedules ScheduleTracker, publisher Publisher, queue DelayedEnqueuer) *PublishWorker {
	return &PublishWorker{
		schedules: schedules,
		publisher: publisher,
		queue:     queue,
	}
}

// ProcessTask handles one publish job execution attempt.
func (w *PublishWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.PublishJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %v: %w", err, asynq.SkipRetry)
	}

	entry, err := w.schedules.Get(ctx, payload.ScheduleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("Dropping job for missing schedule %s", payload.ScheduleID)
			return nil
		}
		return fmt.Errorf("failed to load schedule %s: %w", payload.ScheduleID, err)
	}

	if entry.Status == model.ScheduleStatusCancelled {
		log.Printf("Dropping job for cancelled schedule %s", entry.ID)
		return nil
	}
	if entry.Status.Terminal() {
		log.Printf("Dropping job for already %s schedule %s", entry.Status, entry.ID)
		return nil
	}

	claimed, err := w.schedules.MarkProcessing(ctx, entry.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// The entry left the claimable states between the status check and
		// the claim; whatever moved it owns the outcome.
		log.Printf("Schedule %s no longer claimable, dropping job", entry.ID)
		return nil
	}

	log.Printf("Publishing schedule %s (post=%s attempt=%d)", entry.ID, entry.PostID, entry.AttemptCount+1)

	_, err = w.publisher.Publish(ctx, payload)
	if err == nil {
		return w.schedules.Complete(ctx, entry.ID)
	}

	return w.handleFailure(ctx, payload, entry.ID, err)
}

func (w *PublishWorker) handleFailure(ctx context.Context, payload model.PublishJobPayload, scheduleID string, cause error) error {
	// An internal quota block is not an attempt: put the entry back in line
	// and re-run once the window resets.
	var quotaErr *ratelimit.QuotaExceededError
	if errors.As(cause, &quotaErr) {
		if err := w.schedules.Requeue(ctx, scheduleID, model.ScheduleStatusQueued); err != nil {
			return err
		}
		delay := quotaErr.ResetIn
		if delay <= 0 {
			delay = time.Minute
		}
		if _, err := w.queue.EnqueueDelayed(ctx, payload, delay); err != nil {
			return err
		}
		log.Printf("Schedule %s deferred %s: %v", scheduleID, delay, cause)
		return nil
	}

	// Deterministic failures recur identically on every retry; fail now.
	if provider.Permanent(cause) {
		w.failTerminally(ctx, scheduleID, cause)
		return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried >= maxRetry {
		w.failTerminally(ctx, scheduleID, cause)
		return cause
	}

	if err := w.schedules.RecordAttempt(ctx, scheduleID, cause.Error()); err != nil {
		log.Printf("Failed to record attempt for schedule %s: %v", scheduleID, err)
	}
	if err := w.schedules.Requeue(ctx, scheduleID, model.ScheduleStatusQueued); err != nil {
		log.Printf("Failed to requeue schedule %s: %v", scheduleID, err)
	}
	log.Printf("Schedule %s attempt %d failed, retrying: %v", scheduleID, retried+1, cause)
	return cause
}

func (w *PublishWorker) failTerminally(ctx context.Context, scheduleID string, cause error) {
	if err := w.schedules.Fail(ctx, scheduleID, cause.Error()); err != nil {
		log.Printf("Failed to mark schedule %s failed: %v", scheduleID, err)
	}
	w.publisher.RecordFailure(ctx, scheduleID, cause)
	log.Printf("Schedule %s terminally failed: %v", scheduleID, cause)
}
