package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"market-predictor/internal/domain"
)

const (
	ProgressChannel = "predictor:progress"
	ProgressKey     = "predictor:progress:latest"
)

type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ProgressPublisher mirrors tracker updates into Redis: each state is
// published on a channel and the newest one is kept under a key for
// processes that poll.
type ProgressPublisher struct {
	redis   RedisPublisher
	channel string
	key     string
	ttl     time.Duration
}

func NewProgressPublisher(client RedisPublisher) *ProgressPublisher {
	return &ProgressPublisher{
		redis:   client,
		channel: ProgressChannel,
		key:     ProgressKey,
		ttl:     24 * time.Hour,
	}
}

func (p *ProgressPublisher) Publish(ctx context.Context, state domain.ProgressState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := p.redis.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}
