package model

import "time"

// Priority levels for publish jobs. Near-due and overdue work runs on the
// immediate queue; far-future work waits on the normal queue.
const (
	PriorityImmediate = 1
	PriorityHigh      = 2
	PriorityNormal    = 3
)

// PublishJobPayload is the queue-owned unit wrapping one promotion of a
// schedule entry.
type PublishJobPayload struct {
	PostID       string    `json:"postId"`
	ScheduleID   string    `json:"scheduleId"`
	ScheduledFor time.Time `json:"scheduledFor"`
}

// QueueStats aggregates job counts by state across all publish queues.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Total     int `json:"total"`
}

// FailedJob describes one terminally failed job for operator inspection.
type FailedJob struct {
	ID           string            `json:"id"`
	Data         PublishJobPayload `json:"data"`
	FailedReason string            `json:"failedReason"`
	AttemptsMade int               `json:"attemptsMade"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Health is the worker pool health report.
type Health struct {
	IsRunning bool       `json:"isRunning"`
	IsPaused  bool       `json:"isPaused"`
	Stats     QueueStats `json:"stats"`
	Healthy   bool       `json:"healthy"`
}
