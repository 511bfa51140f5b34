package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"group-quiz-service/internal/app"
	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/infra/postgres"
	infraredis "group-quiz-service/internal/infra/redis"
	"group-quiz-service/internal/logging"
	"group-quiz-service/internal/timer"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestQuizSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	if n, err := postgres.NewQuizLoader(pool).Count(ctx); err != nil || n != 1 {
		t.Fatalf("expected one quiz created, got %d err=%v", n, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := logging.Discard()
	scores := postgres.NewScoreStore(pool)
	cache := infraredis.NewLeaderboardCache(redisClient, scores, 10, time.Minute, nil, log)
	clock := timer.NewManual(time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC))

	registry := app.NewRegistry(infraredis.NewSessionStore(redisClient, 5*time.Minute), app.Deps{
		Quizzes:     infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute, log),
		Scores:      scores,
		Leaderboard: cache,
		Timers:      clock,
		Policy:      app.FlatScoring{Base: 10},
		Logger:      log,
	})

	session, err := registry.Start(ctx, "group-G", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := registry.Start(ctx, "group-G", "quiz-1"); !errors.Is(err, domain.ErrAlreadyActive) {
		t.Fatalf("expected already active, got %v", err)
	}

	clock.Advance(5 * time.Second)
	if got := registry.RouteAnswer(ctx, "group-G", "A", 1); got != domain.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}
	clock.Advance(5 * time.Second)
	if got := registry.RouteAnswer(ctx, "group-G", "B", 0); got != domain.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}
	clock.Advance(20 * time.Second)

	clock.Advance(5 * time.Second)
	if got := registry.RouteAnswer(ctx, "group-G", "A", 2); got != domain.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}
	clock.Advance(25 * time.Second)

	if session.State() != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", session.State())
	}
	if redisClient.Exists(ctx, "active_quiz:group-G").Val() != 0 {
		t.Fatalf("expected active marker released")
	}

	lb, err := cache.Get(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].ParticipantID != "A" || lb.Entries[0].Score != 20 || lb.Entries[1].Score != 0 {
		t.Fatalf("expected A leading with 20, got %+v", lb.Entries)
	}

	if err := cache.Reset(ctx, "quiz-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	lb, err = cache.Get(ctx, "quiz-1")
	if err != nil || len(lb.Entries) != 0 {
		t.Fatalf("expected empty board after reset, got %+v err=%v", lb, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	t.Helper()
	db := postgres.OpenBun(dsn)
	defer db.Close()

	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	writer := postgres.NewQuizWriter(db)
	created, err := writer.SaveQuiz(ctx, quiz)
	if err != nil || !created {
		t.Fatalf("save quiz: created=%v err=%v", created, err)
	}
	created, err = writer.SaveQuiz(ctx, quiz)
	if err != nil || created {
		t.Fatalf("second save must update: created=%v err=%v", created, err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Warmup",
		TimeLimitSeconds: 30,
		Questions: []domain.Question{
			{Prompt: "Q0", Options: []string{"a", "b", "c"}, CorrectIndex: 1},
			{Prompt: "Q1", Options: []string{"a", "b", "c"}, CorrectIndex: 2},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
