package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ScoreSource is the part of the score store the leaderboard cache reads and purges.
type ScoreSource interface {
	TopN(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error)
	Clear(ctx context.Context, quizID string) error
}

// storeIfCurrent writes the entry only if the version counter has not moved since the
// recompute began.
var storeIfCurrent = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// LeaderboardCache keeps top-N leaderboards in Redis so every engine process serves the
// same board.
// Entries are stored as: SET leaderboard:{quizID} {"version":v,"board":...} PX ttl
// Versions are stored as: INCR leaderboard:{quizID}:version
type LeaderboardCache struct {
	client  *redis.Client
	scores  ScoreSource
	size    int
	ttl     time.Duration
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	sf      singleflight.Group
}

type cachedLeaderboard struct {
	Version uint64             `json:"version"`
	Board   domain.Leaderboard `json:"board"`
}

func NewLeaderboardCache(client *redis.Client, scores ScoreSource, size int, ttl time.Duration, m *metrics.Metrics, log logrus.FieldLogger) *LeaderboardCache {
	if size <= 0 {
		size = 10
	}
	return &LeaderboardCache{
		client:  client,
		scores:  scores,
		size:    size,
		ttl:     ttl,
		metrics: m,
		log:     log,
	}
}

func (c *LeaderboardCache) Get(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	pipe := c.client.Pipeline()
	versionCmd := pipe.Get(ctx, versionKey(quizID))
	entryCmd := pipe.Get(ctx, entryKey(quizID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, fmt.Errorf("read leaderboard %s: %w", quizID, err)
	}

	version, err := versionCmd.Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, fmt.Errorf("read leaderboard version %s: %w", quizID, err)
	}

	if raw, err := entryCmd.Bytes(); err == nil {
		var entry cachedLeaderboard
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.log.WithField("quiz_id", quizID).Warn("discarding corrupted cached leaderboard")
			_ = c.client.Del(ctx, entryKey(quizID)).Err()
		} else if entry.Version == version {
			c.observe("hit")
			return entry.Board, nil
		}
	}
	c.observe("miss")

	key := quizID + "@" + strconv.FormatUint(version, 10)
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		rows, err := c.scores.TopN(ctx, quizID, c.size)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		board := domain.Leaderboard{QuizID: quizID, Entries: rows, UpdatedAt: time.Now().UTC()}

		payload, err := json.Marshal(cachedLeaderboard{Version: version, Board: board})
		if err != nil {
			return domain.Leaderboard{}, fmt.Errorf("encode leaderboard %s: %w", quizID, err)
		}
		err = storeIfCurrent.Run(ctx, c.client,
			[]string{entryKey(quizID), versionKey(quizID)},
			strconv.FormatUint(version, 10), payload, c.ttl.Milliseconds(),
		).Err()
		if err != nil {
			// serving the recomputed board is still correct
			c.log.WithError(err).WithField("quiz_id", quizID).Warn("store cached leaderboard failed")
		}
		return board, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// Invalidate bumps the version; entries tagged with an older version are never served.
func (c *LeaderboardCache) Invalidate(ctx context.Context, quizID string) error {
	if err := c.client.Incr(ctx, versionKey(quizID)).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboard %s: %w", quizID, err)
	}
	return nil
}

// Reset purges durable scores and the cached entry, bumping the version on both sides of
// the purge so an overlapping recompute is discarded.
func (c *LeaderboardCache) Reset(ctx context.Context, quizID string) error {
	if err := c.drop(ctx, quizID); err != nil {
		return err
	}
	clearErr := c.scores.Clear(ctx, quizID)
	if err := c.drop(ctx, quizID); err != nil {
		return err
	}
	if clearErr != nil {
		return fmt.Errorf("clear scores %s: %w", quizID, clearErr)
	}
	return nil
}

func (c *LeaderboardCache) drop(ctx context.Context, quizID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(quizID))
		pipe.Del(ctx, entryKey(quizID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop leaderboard %s: %w", quizID, err)
	}
	return nil
}

func (c *LeaderboardCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func entryKey(quizID string) string {
	return "leaderboard:" + quizID
}

func versionKey(quizID string) string {
	return "leaderboard:" + quizID + ":version"
}
