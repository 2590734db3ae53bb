package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/postpilot/api/internal/model"
)

const resultTTL = 7 * 24 * time.Hour

// PublishOutcome is the record handed to the result-reporting collaborator.
type PublishOutcome struct {
	ScheduleID string               `json:"scheduleId"`
	Result     *model.PublishResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// ResultStore records terminal publish outcomes where the notification and
// analytics collaborators pick them up.
type ResultStore struct {
	redis *redis.Client
}

func NewResultStore(redisClient *redis.Client) *ResultStore {
	return &ResultStore{redis: redisClient}
}

func (s *ResultStore) Record(ctx context.Context, outcome *PublishOutcome) error {
	outcome.FinishedAt = time.Now()
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, "publish_result:"+outcome.ScheduleID, data, resultTTL).Err()
}

func (s *ResultStore) Get(ctx context.Context, scheduleID string) (*PublishOutcome, error) {
	data, err := s.redis.Get(ctx, "publish_result:"+scheduleID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("result for schedule %s: %w", scheduleID, ErrNotFound)
		}
		return nil, err
	}

	var outcome PublishOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}
