package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sequence hands out ids from Redis counters, one key per name, so ids stay
// unique across restarts and across instances.
type Sequence struct {
	client  *redis.Client
	timeout time.Duration
}

func NewSequence(client *redis.Client) *Sequence {
	return &Sequence{client: client, timeout: 2 * time.Second}
}

func (s *Sequence) Next(name string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	id, err := s.client.Incr(ctx, s.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", name, err)
	}
	return id, nil
}

func (s *Sequence) key(name string) string {
	return "quiz:seq:" + name
}
