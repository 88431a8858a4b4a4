package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomCodes reserves join codes in Redis so instances sharing the same
// Redis never hand out the same code to two live sessions.
// A reservation is a liveness marker that expires after ttl.
type RoomCodes struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomCodes(client *redis.Client, ttl time.Duration) *RoomCodes {
	return &RoomCodes{client: client, ttl: ttl}
}

// Reserve reports false when the code is already held.
func (r *RoomCodes) Reserve(ctx context.Context, code string) (bool, error) {
	return r.client.SetNX(ctx, r.key(code), "1", r.ttl).Result()
}

func (r *RoomCodes) Release(ctx context.Context, code string) error {
	return r.client.Del(ctx, r.key(code)).Err()
}

func (r *RoomCodes) key(code string) string {
	return "quiz:room:" + code
}
