package cli

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"group-quiz-service/internal/app"
	"group-quiz-service/internal/config"
	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/infra/memory"
	"group-quiz-service/internal/infra/postgres"
	infraredis "group-quiz-service/internal/infra/redis"
	"group-quiz-service/internal/infra/sqlite"
	"group-quiz-service/internal/metrics"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// backends are the storage collaborators selected from config:
// quiz definitions from Postgres, else the seed file;
// scores in Postgres, else SQLite, else memory;
// caches in Redis when configured, else in process.
type backends struct {
	redis       *redis.Client
	pool        *pgxpool.Pool
	quizzes     app.QuizRepository
	scores      app.ScoreStore
	leaderboard app.LeaderboardCache
	closers     []func() error
	log         logrus.FieldLogger
}

func openBackends(ctx context.Context, cfg config.Config, log logrus.FieldLogger, m *metrics.Metrics) (*backends, error) {
	b := &backends{log: log}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, b.redis.Close)
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
	}

	var loader memory.QuizLoader
	if b.pool != nil {
		pgLoader := postgres.NewQuizLoader(b.pool)
		if n, err := pgLoader.Count(ctx); err != nil {
			log.WithError(err).Warn("count quizzes failed")
		} else {
			m.QuizzesCreated.Set(float64(n))
		}
		loader = pgLoader
	} else {
		seeded, err := seedQuizzes(cfg.Quiz.SeedFile)
		if err != nil {
			b.Close()
			return nil, err
		}
		m.QuizzesCreated.Set(float64(len(seeded)))
		log.WithField("quizzes", len(seeded)).Info("serving quizzes from seed file")
		loader = memory.NewStaticQuizLoader(seeded)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if b.redis != nil {
		b.quizzes = infraredis.NewQuizRepository(b.redis, loader, quizTTL, log)
	} else {
		b.quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	switch {
	case b.pool != nil:
		b.scores = postgres.NewScoreStore(b.pool)
	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.scores = store
		b.closers = append(b.closers, store.Close)
	default:
		log.Warn("no durable score store configured, scores are kept in memory")
		b.scores = memory.NewScoreStore()
	}

	lbTTL := config.TTLDuration(cfg.Leaderboard.TTL, time.Minute)
	if b.redis != nil {
		b.leaderboard = infraredis.NewLeaderboardCache(b.redis, b.scores, cfg.Leaderboard.Size, lbTTL, m, log)
	} else {
		b.leaderboard = memory.NewLeaderboardCache(b.scores, cfg.Leaderboard.Size, lbTTL, m)
	}
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.log.WithError(err).Warn("close backend failed")
		}
	}
	b.closers = nil
}

func seedQuizzes(path string) (map[string]domain.Quiz, error) {
	out := make(map[string]domain.Quiz)
	if path == "" {
		return out, nil
	}
	quizzes, err := config.LoadQuizzes(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, quiz := range quizzes {
		out[quiz.ID] = quiz
	}
	return out, nil
}
