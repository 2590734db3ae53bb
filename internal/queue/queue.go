package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/postpilot/api/internal/model"
)

// TaskTypePublish is the asynq task type for one publish job.
const TaskTypePublish = "post:publish"

const (
	// TotalAttempts bounds how many times a job may execute before it is
	// terminally failed.
	TotalAttempts = 3

	// nearDueWindow: anything due within this window (or overdue) runs
	// immediately at top priority.
	nearDueWindow = 5 * time.Second

	// publishTimeout is the hard wall-clock cap on one execution attempt.
	// It must exceed the longest provider polling deadline (180s for
	// short-form video) or the queue would kill a poll loop before it can
	// time out on its own terms.
	publishTimeout = 240 * time.Second

	completedRetention = 24 * time.Hour
	failedRetention    = 7 * 24 * time.Hour
)

// Queue names by priority. asynq drains them by weight, so immediate work
// preempts normal work without starving it.
const (
	QueueImmediate = "immediate"
	QueueHigh      = "high"
	QueueNormal    = "normal"
)

// QueueWeights is the asynq server queue configuration.
var QueueWeights = map[string]int{
	QueueImmediate: 6,
	QueueHigh:      3,
	QueueNormal:    1,
}

func queueFor(priority int) string {
	switch priority {
	case model.PriorityImmediate:
		return QueueImmediate
	case model.PriorityHigh:
		return QueueHigh
	default:
		return QueueNormal
	}
}

// enqueuePlan computes the delay and effective priority for a job. Near-due
// and overdue work is forced to immediate with no delay.
func enqueuePlan(scheduledFor, now time.Time, priority int) (time.Duration, int) {
	delay := scheduledFor.Sub(now)
	if delay < nearDueWindow {
		return 0, model.PriorityImmediate
	}
	return delay, priority
}

// taskInspector is the slice of asynq.Inspector the admin surface uses.
type taskInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// Queue is the durable publish job queue over asynq/Redis. The Redis-backed
// queue is the only coordination mechanism between worker processes.
type Queue struct {
	client    *asynq.Client
	inspector taskInspector
}

func New(redisOpt asynq.RedisClientOpt) *Queue {
	return &Queue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
	}
}

func (q *Queue) Close() error {
	q.inspector.Close()
	return q.client.Close()
}

// Enqueue adds one publish job for a schedule entry. The task id is derived
// from the schedule id so a duplicate promotion cannot create a second
// active job even if the store-level guard were bypassed.
func (q *Queue) Enqueue(ctx context.Context, payload model.PublishJobPayload, priority int) (string, error) {
	delay, priority := enqueuePlan(payload.ScheduledFor, time.Now(), priority)

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(queueFor(priority)),
		asynq.TaskID("publish:" + payload.ScheduleID),
		asynq.MaxRetry(TotalAttempts - 1),
		asynq.Timeout(publishTimeout),
		asynq.Retention(completedRetention),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypePublish, data), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", fmt.Errorf("job for schedule %s already enqueued: %w", payload.ScheduleID, err)
		}
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Printf("Enqueued publish job %s (schedule=%s queue=%s delay=%s)", info.ID, payload.ScheduleID, info.Queue, delay)
	return info.ID, nil
}

// EnqueueDelayed re-adds a job after an internal quota block without
// consuming an attempt. It uses a fresh task id because the original id is
// still held by the finishing task.
func (q *Queue) EnqueueDelayed(ctx context.Context, payload model.PublishJobPayload, delay time.Duration) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypePublish, data),
		asynq.Queue(QueueHigh),
		asynq.MaxRetry(TotalAttempts-1),
		asynq.Timeout(publishTimeout),
		asynq.Retention(completedRetention),
		asynq.ProcessIn(delay),
	)
	if err != nil {
		return "", fmt.Errorf("failed to re-enqueue job: %w", err)
	}
	return info.ID, nil
}

// Retry re-enqueues a job immediately with a fresh attempt budget, used by
// operators on terminally failed schedules.
func (q *Queue) Retry(ctx context.Context, payload model.PublishJobPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypePublish, data),
		asynq.Queue(QueueImmediate),
		asynq.MaxRetry(TotalAttempts-1),
		asynq.Timeout(publishTimeout),
		asynq.Retention(completedRetention),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue retry: %w", err)
	}

	log.Printf("Re-enqueued publish job %s (schedule=%s)", info.ID, payload.ScheduleID)
	return info.ID, nil
}

// Cancel removes a job that has not started execution. Returns false when
// the job is unknown, already running, or already finished — cancellation
// is advisory-only once execution begins.
func (q *Queue) Cancel(ctx context.Context, jobID string) (bool, error) {
	for queueName := range QueueWeights {
		info, err := q.inspector.GetTaskInfo(queueName, jobID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return false, fmt.Errorf("failed to inspect job %s in %s: %w", jobID, queueName, err)
		}

		switch info.State {
		case asynq.TaskStateActive:
			log.Printf("Cancel of job %s refused: already running", jobID)
			return false, nil
		case asynq.TaskStateCompleted:
			return false, nil
		}

		if err := q.inspector.DeleteTask(queueName, jobID); err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) {
				// Finished between the inspect and the delete.
				return false, nil
			}
			return false, fmt.Errorf("failed to delete job %s in %s: %w", jobID, queueName, err)
		}
		log.Printf("Cancelled publish job %s (queue=%s)", jobID, queueName)
		return true, nil
	}
	return false, nil
}

// CancelBySchedule removes the waiting job derived from a schedule id.
func (q *Queue) CancelBySchedule(ctx context.Context, scheduleID string) (bool, error) {
	return q.Cancel(ctx, "publish:"+scheduleID)
}

// Stats aggregates job counts by state across the publish queues.
func (q *Queue) Stats(ctx context.Context) (*model.QueueStats, error) {
	var stats model.QueueStats
	for queueName := range QueueWeights {
		info, err := q.inspector.GetQueueInfo(queueName)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to inspect queue %s: %w", queueName, err)
		}
		stats.Waiting += info.Pending
		stats.Active += info.Active
		stats.Completed += info.Completed
		stats.Failed += info.Archived
		stats.Delayed += info.Scheduled + info.Retry
	}
	stats.Total = stats.Waiting + stats.Active + stats.Completed + stats.Failed + stats.Delayed
	return &stats, nil
}

// Paused reports whether any publish queue is paused.
func (q *Queue) Paused(ctx context.Context) (bool, error) {
	for queueName := range QueueWeights {
		info, err := q.inspector.GetQueueInfo(queueName)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return false, err
		}
		if info.Paused {
			return true, nil
		}
	}
	return false, nil
}

// ListFailed returns recent terminal failures for operator inspection.
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]model.FailedJob, error) {
	if limit <= 0 {
		limit = 50
	}

	var failed []model.FailedJob
	for queueName := range QueueWeights {
		tasks, err := q.inspector.ListArchivedTasks(queueName, asynq.PageSize(limit))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to list archived tasks in %s: %w", queueName, err)
		}
		for _, t := range tasks {
			var payload model.PublishJobPayload
			if err := json.Unmarshal(t.Payload, &payload); err != nil {
				log.Printf("Skipping archived task %s with bad payload: %v", t.ID, err)
				continue
			}
			failed = append(failed, model.FailedJob{
				ID:           t.ID,
				Data:         payload,
				FailedReason: t.LastErr,
				AttemptsMade: t.Retried + 1,
				Timestamp:    t.LastFailedAt,
			})
		}
	}

	if len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

// GC purges archived jobs past the failure retention window. Completed jobs
// expire on their own via task retention.
func (q *Queue) GC(ctx context.Context) {
	cutoff := time.Now().Add(-failedRetention)
	for queueName := range QueueWeights {
		tasks, err := q.inspector.ListArchivedTasks(queueName, asynq.PageSize(500))
		if err != nil {
			if !errors.Is(err, asynq.ErrQueueNotFound) {
				log.Printf("Queue GC: failed to list archived tasks in %s: %v", queueName, err)
			}
			continue
		}
		for _, t := range tasks {
			if t.LastFailedAt.Before(cutoff) {
				if err := q.inspector.DeleteTask(queueName, t.ID); err != nil {
					log.Printf("Queue GC: failed to delete %s: %v", t.ID, err)
				}
			}
		}
	}
}
