package service

import (
	"context"
	"fmt"
	"log"

	"github.com/postpilot/api/internal/model"
	"github.com/postpilot/api/internal/provider"
	"github.com/postpilot/api/internal/store"
)

// ChannelSource is the read-only channel lookup collaborator.
type ChannelSource interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
}

// PostSource is the read-only post content lookup collaborator.
type PostSource interface {
	Get(ctx context.Context, id string) (*model.Post, error)
}

// ScheduleReader loads schedule entries; the entry owns the post/channel
// pairing the job payload references.
type ScheduleReader interface {
	Get(ctx context.Context, id string) (*model.ScheduleEntry, error)
}

// ProviderResolver turns a channel into a platform provider instance.
type ProviderResolver interface {
	Resolve(ch *model.Channel) (provider.Provider, error)
}

// QuotaLimiter is the internal per-channel publish quota.
type QuotaLimiter interface {
	Check(ctx context.Context, ch *model.Channel) error
	Increment(ctx context.Context, ch *model.Channel) error
}

// OutcomeRecorder hands terminal publish outcomes to the reporting
// collaborator.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome *store.PublishOutcome) error
}

// PublishService orchestrates one publish attempt: resolve the channel and
// post, apply the internal quota, resolve the provider, publish, and
// normalize the outcome.
type PublishService struct {
	schedules ScheduleReader
	channels  ChannelSource
	posts     PostSource
	registry  ProviderResolver
	limiter   QuotaLimiter
	results   OutcomeRecorder
}

func NewPublishService(schedules ScheduleReader, channels ChannelSource, posts PostSource, registry ProviderResolver, limiter QuotaLimiter, results OutcomeRecorder) *PublishService {
	return &PublishService{
		schedules: schedules,
		channels:  channels,
		posts:     posts,
		registry:  registry,
		limiter:   limiter,
		results:   results,
	}
}

// Publish runs one attempt for the job payload. The quota check runs before
// the provider is resolved so a blocked channel consumes no external API
// call.
func (s *PublishService) Publish(ctx context.Context, payload model.PublishJobPayload) (*model.PublishResult, error) {
	entry, err := s.schedules.Get(ctx, payload.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule entry: %w", err)
	}

	post, err := s.posts.Get(ctx, payload.PostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}

	ch, err := s.channels.Get(ctx, entry.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}

	if err := s.limiter.Check(ctx, ch); err != nil {
		return nil, err
	}

	p, err := s.registry.Resolve(ch)
	if err != nil {
		return nil, err
	}

	result, err := provider.Publish(ctx, p, post)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Increment(ctx, ch); err != nil {
		// The post is live; a quota bookkeeping failure must not fail the job.
		log.Printf("Quota increment failed for channel %s: %v", ch.ID, err)
	}

	if err := s.results.Record(ctx, &store.PublishOutcome{ScheduleID: payload.ScheduleID, Result: result}); err != nil {
		log.Printf("Failed to record publish outcome for schedule %s: %v", payload.ScheduleID, err)
	}

	log.Printf("Published schedule %s to %s: %s", payload.ScheduleID, ch.Platform, result.PlatformPostID)
	return result, nil
}

// RecordFailure reports a terminal failure to the outcome collaborator.
func (s *PublishService) RecordFailure(ctx context.Context, scheduleID string, cause error) {
	if err := s.results.Record(ctx, &store.PublishOutcome{ScheduleID: scheduleID, Error: cause.Error()}); err != nil {
		log.Printf("Failed to record failure outcome for schedule %s: %v", scheduleID, err)
	}
}
