package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/postpilot/api/internal/model"
)

// ChannelStore is a read-only view over channel records the connections
// service mirrors into Redis. The pipeline consumes credentials; it never
// writes them.
type ChannelStore struct {
	redis *redis.Client
}

func NewChannelStore(redisClient *redis.Client) *ChannelStore {
	return &ChannelStore{redis: redisClient}
}

func (s *ChannelStore) Get(ctx context.Context, id string) (*model.Channel, error) {
	data, err := s.redis.Get(ctx, "channel:"+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	var ch model.Channel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel %s: %w", id, err)
	}
	return &ch, nil
}

// PostStore is the read-only view over post content from the content
// library.
type PostStore struct {
	redis *redis.Client
}

func NewPostStore(redisClient *redis.Client) *PostStore {
	return &PostStore{redis: redisClient}
}

func (s *PostStore) Get(ctx context.Context, id string) (*model.Post, error) {
	data, err := s.redis.Get(ctx, "post:"+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	var post model.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post %s: %w", id, err)
	}
	return &post, nil
}
