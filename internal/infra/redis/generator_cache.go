package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

// GeneratorCache keeps generated question sets in Redis so every instance
// reuses them, and falls back to the wrapped generator on a miss.
// Entries are stored as: SET quiz:gen:{topic|count|difficulty} {json} EX ttl
type GeneratorCache struct {
	client *redis.Client
	next   app.Generator
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewGeneratorCache(client *redis.Client, next app.Generator, ttl time.Duration) *GeneratorCache {
	return &GeneratorCache{
		client: client,
		next:   next,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *GeneratorCache) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedQuiz, error) {
	key := c.key(req)
	if quiz, ok := c.lookup(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// re-check in case another instance filled it
		if quiz, ok := c.lookup(ctx, key); ok {
			return quiz, nil
		}
		quiz, err := c.next.Generate(ctx, req)
		if err != nil {
			return domain.GeneratedQuiz{}, err
		}
		if err := app.ValidateGenerated(req, quiz); err != nil {
			return quiz, nil
		}
		if raw, err := json.Marshal(quiz); err == nil {
			// best-effort; a failed write only costs a future regeneration
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.GeneratedQuiz{}, err
	}
	return result.(domain.GeneratedQuiz), nil
}

func (c *GeneratorCache) lookup(ctx context.Context, key string) (domain.GeneratedQuiz, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.GeneratedQuiz{}, false
	}
	var quiz domain.GeneratedQuiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.GeneratedQuiz{}, false
	}
	return quiz, true
}

func (c *GeneratorCache) key(req domain.GenerationRequest) string {
	return "quiz:gen:" + memory.CacheKey(req)
}

func (c *GeneratorCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
