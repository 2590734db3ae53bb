package model

import "time"

// ScheduleStatus tracks a schedule entry through its lifecycle
type ScheduleStatus string

const (
	ScheduleStatusPending    ScheduleStatus = "pending"
	ScheduleStatusQueued     ScheduleStatus = "queued"
	ScheduleStatusProcessing ScheduleStatus = "processing"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusFailed     ScheduleStatus = "failed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// ScheduleEntry is a persisted intent to publish a post to a channel at a
// specific future time. The scheduler promotes due entries into queue jobs;
// workers drive them to a terminal status.
type ScheduleEntry struct {
	ID           string         `json:"id"`
	PostID       string         `json:"postId"`
	ChannelID    string         `json:"channelId"`
	ScheduledFor time.Time      `json:"scheduledFor"`
	Status       ScheduleStatus `json:"status"`
	AttemptCount int            `json:"attemptCount"`
	LastError    *string        `json:"lastError,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Terminal reports whether the entry has reached a final state.
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleStatusCompleted || s == ScheduleStatusFailed || s == ScheduleStatusCancelled
}
