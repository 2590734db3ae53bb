package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postpilot/api/internal/model"
	"github.com/postpilot/api/internal/store"
)

// ScheduleCreateRequest is the API payload for scheduling a post.
type ScheduleCreateRequest struct {
	PostID       string    `json:"postId" validate:"required"`
	ChannelID    string    `json:"channelId" validate:"required"`
	ScheduledFor time.Time `json:"scheduledFor" validate:"required"`
}

// ScheduleView is the API shape of a schedule entry plus its recorded
// outcome once terminal.
type ScheduleView struct {
	*model.ScheduleEntry
	Outcome *store.PublishOutcome `json:"outcome,omitempty"`
}

// ScheduleAdmin is the slice of the schedule store the API needs.
type ScheduleAdmin interface {
	Create(ctx context.Context, postID, channelID string, scheduledFor time.Time) (*model.ScheduleEntry, error)
	Get(ctx context.Context, id string) (*model.ScheduleEntry, error)
	Cancel(ctx context.Context, id string) (bool, error)
	ResetForRetry(ctx context.Context, id string) (bool, error)
}

// JobAdmin is the slice of the job queue the API needs.
type JobAdmin interface {
	CancelBySchedule(ctx context.Context, scheduleID string) (bool, error)
	Retry(ctx context.Context, payload model.PublishJobPayload) (string, error)
}

// OutcomeReader loads recorded publish outcomes.
type OutcomeReader interface {
	Get(ctx context.Context, scheduleID string) (*store.PublishOutcome, error)
}

// Errors the handler layer maps onto HTTP responses.
var (
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrScheduleNotPending   = errors.New("schedule already started or finished")
	ErrScheduleNotRetryable = errors.New("only failed schedules can be retried")
)

// ScheduleService is the API-facing management surface for schedule
// entries.
type ScheduleService struct {
	schedules ScheduleAdmin
	channels  ChannelSource
	queue     JobAdmin
	outcomes  OutcomeReader
}

func NewScheduleService(schedules ScheduleAdmin, channels ChannelSource, queue JobAdmin, outcomes OutcomeReader) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		channels:  channels,
		queue:     queue,
		outcomes:  outcomes,
	}
}

// Create persists a new pending schedule entry. Entries due in the past are
// accepted; the next promotion cycle runs them immediately.
func (s *ScheduleService) Create(ctx context.Context, req *ScheduleCreateRequest) (*model.ScheduleEntry, error) {
	if _, err := s.channels.Get(ctx, req.ChannelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("channel %s is not connected", req.ChannelID)
		}
		return nil, err
	}
	return s.schedules.Create(ctx, req.PostID, req.ChannelID, req.ScheduledFor)
}

// Get returns the entry and, for terminal entries, its recorded outcome.
func (s *ScheduleService) Get(ctx context.Context, id string) (*ScheduleView, error) {
	entry, err := s.schedules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	view := &ScheduleView{ScheduleEntry: entry}
	if entry.Status.Terminal() {
		if outcome, err := s.outcomes.Get(ctx, id); err == nil {
			view.Outcome = outcome
		}
	}
	return view, nil
}

// Cancel stops an entry that has not started executing and removes its
// waiting job. Once a worker picked the job up, cancellation is refused.
func (s *ScheduleService) Cancel(ctx context.Context, id string) error {
	cancelled, err := s.schedules.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !cancelled {
		if _, err := s.schedules.Get(ctx, id); errors.Is(err, store.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return ErrScheduleNotPending
	}

	// Best effort: the job may not exist yet (entry was still pending) or
	// may already be gone.
	if _, err := s.queue.CancelBySchedule(ctx, id); err != nil {
		return err
	}
	return nil
}

// Retry re-runs a terminally failed entry immediately with a fresh attempt
// budget.
func (s *ScheduleService) Retry(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	entry, err := s.schedules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	reset, err := s.schedules.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, ErrScheduleNotRetryable
	}

	payload := model.PublishJobPayload{
		PostID:       entry.PostID,
		ScheduleID:   entry.ID,
		ScheduledFor: entry.ScheduledFor,
	}
	if _, err := s.queue.Retry(ctx, payload); err != nil {
		return nil, err
	}

	return s.schedules.Get(ctx, id)
}
