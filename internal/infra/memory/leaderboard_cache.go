package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// ScoreSource is the part of the score store the leaderboard cache reads and purges.
type ScoreSource interface {
	TopN(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error)
	Clear(ctx context.Context, quizID string) error
}

// LeaderboardCache keeps top-N leaderboards in process memory.
// Every invalidation bumps a per-quiz version; an entry is served only while its
// version is current and its TTL has not expired, so a recompute that raced an
// invalidation can never be served.
type LeaderboardCache struct {
	scores  ScoreSource
	size    int
	ttl     time.Duration
	clock   func() time.Time
	metrics *metrics.Metrics
	sf      singleflight.Group

	mu       sync.RWMutex
	entries  map[string]cachedLeaderboard
	versions map[string]uint64
}

type cachedLeaderboard struct {
	board     domain.Leaderboard
	version   uint64
	expiresAt time.Time
}

func NewLeaderboardCache(scores ScoreSource, size int, ttl time.Duration, m *metrics.Metrics) *LeaderboardCache {
	if size <= 0 {
		size = 10
	}
	return &LeaderboardCache{
		scores:   scores,
		size:     size,
		ttl:      ttl,
		clock:    time.Now,
		metrics:  m,
		entries:  make(map[string]cachedLeaderboard),
		versions: make(map[string]uint64),
	}
}

func (c *LeaderboardCache) Get(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	now := c.clock()

	c.mu.RLock()
	version := c.versions[quizID]
	entry, ok := c.entries[quizID]
	c.mu.RUnlock()
	if ok && entry.version == version && entry.expiresAt.After(now) {
		c.observe("hit")
		return entry.board, nil
	}
	c.observe("miss")

	key := quizID + "@" + strconv.FormatUint(version, 10)
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		rows, err := c.scores.TopN(ctx, quizID, c.size)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		board := domain.Leaderboard{QuizID: quizID, Entries: rows, UpdatedAt: c.clock()}

		c.mu.Lock()
		if c.versions[quizID] == version {
			c.entries[quizID] = cachedLeaderboard{
				board:     board,
				version:   version,
				expiresAt: board.UpdatedAt.Add(c.ttl),
			}
		}
		c.mu.Unlock()
		return board, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// Invalidate marks the entry stale; the next Get recomputes it.
func (c *LeaderboardCache) Invalidate(_ context.Context, quizID string) error {
	c.mu.Lock()
	c.versions[quizID]++
	c.mu.Unlock()
	return nil
}

// Reset purges durable scores and the cached entry. The version is bumped on both
// sides of the purge so a recompute overlapping it is discarded.
func (c *LeaderboardCache) Reset(ctx context.Context, quizID string) error {
	c.mu.Lock()
	c.versions[quizID]++
	delete(c.entries, quizID)
	c.mu.Unlock()

	err := c.scores.Clear(ctx, quizID)

	c.mu.Lock()
	c.versions[quizID]++
	delete(c.entries, quizID)
	c.mu.Unlock()
	return err
}

func (c *LeaderboardCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
