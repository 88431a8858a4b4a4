package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// CachedGenerator caches generated question sets with TTL to avoid repeated
// generator calls for identical requests. Concurrent identical requests share one call.
type CachedGenerator struct {
	next  app.Generator
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.GeneratedQuiz
	expiresAt time.Time
}

func NewCachedGenerator(next app.Generator, ttl time.Duration) *CachedGenerator {
	return &CachedGenerator{
		next:  next,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuiz),
	}
}

func (g *CachedGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedQuiz, error) {
	key := CacheKey(req)
	now := g.clock()

	g.mu.RLock()
	if entry, ok := g.cache[key]; ok && entry.expiresAt.After(now) {
		g.mu.RUnlock()
		return entry.quiz, nil
	}
	g.mu.RUnlock()

	result, err, _ := g.sf.Do(key, func() (interface{}, error) {
		now := g.clock()
		g.mu.RLock()
		if entry, ok := g.cache[key]; ok && entry.expiresAt.After(now) {
			g.mu.RUnlock()
			return entry.quiz, nil
		}
		g.mu.RUnlock()

		quiz, err := g.next.Generate(ctx, req)
		if err != nil {
			return domain.GeneratedQuiz{}, err
		}
		// only well-formed output is worth keeping
		if err := app.ValidateGenerated(req, quiz); err == nil {
			g.mu.Lock()
			g.cache[key] = cachedQuiz{quiz: quiz, expiresAt: now.Add(g.ttlWithJitter())}
			g.mu.Unlock()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.GeneratedQuiz{}, err
	}
	return result.(domain.GeneratedQuiz), nil
}

// CacheKey normalises a request into a cache key.
func CacheKey(req domain.GenerationRequest) string {
	return fmt.Sprintf("%s|%d|%s",
		strings.ToLower(strings.TrimSpace(req.Topic)),
		req.QuestionsCount,
		strings.ToLower(req.Difficulty))
}

func (g *CachedGenerator) ttlWithJitter() time.Duration {
	if g.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(g.ttl) / 10
	g.rndMu.Lock()
	defer g.rndMu.Unlock()
	return g.ttl + time.Duration(g.rnd.Int63n(jitterMax+1))
}
