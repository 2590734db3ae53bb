package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/postpilot/api/internal/model"
)

// QuotaExceededError reports that a channel has used up its publish quota
// for the current window. It fails fast: no provider call is made and no
// retry attempt is consumed.
type QuotaExceededError struct {
	ChannelID string
	ResetIn   time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("publish quota exceeded for channel %s, resets in %s", e.ChannelID, e.ResetIn)
}

// Limiter counts confirmed publishes per channel in a fixed window backed
// by a shared Redis counter, so every worker process sees the same quota.
type Limiter struct {
	redis  *redis.Client
	window time.Duration
	caps   map[string]int
}

// New builds a limiter with per-platform caps over the given window. A
// platform missing from caps is unlimited.
func New(redisClient *redis.Client, window time.Duration, caps map[string]int) *Limiter {
	return &Limiter{
		redis:  redisClient,
		window: window,
		caps:   caps,
	}
}

func (l *Limiter) key(ch *model.Channel) string {
	return fmt.Sprintf("quota:%s:%s", ch.Platform, ch.ID)
}

// Check returns a QuotaExceededError when the channel has no quota left in
// the current window. It must run before the provider is invoked.
func (l *Limiter) Check(ctx context.Context, ch *model.Channel) error {
	cap, ok := l.caps[ch.Platform]
	if !ok || cap <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, l.key(ch)).Int()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("quota lookup failed: %w", err)
	}

	if count >= cap {
		ttl, err := l.redis.TTL(ctx, l.key(ch)).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return &QuotaExceededError{ChannelID: ch.ID, ResetIn: ttl}
	}
	return nil
}

// Increment records one confirmed successful publish. Call it only after
// the provider reported success so blocked or failed attempts never burn
// quota.
func (l *Limiter) Increment(ctx context.Context, ch *model.Channel) error {
	count, err := l.redis.Incr(ctx, l.key(ch)).Result()
	if err != nil {
		return fmt.Errorf("quota increment failed: %w", err)
	}
	if count == 1 {
		l.redis.Expire(ctx, l.key(ch), l.window)
	}
	return nil
}
