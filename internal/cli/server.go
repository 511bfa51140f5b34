package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"group-quiz-service/internal/app"
	"group-quiz-service/internal/auth"
	"group-quiz-service/internal/config"
	"group-quiz-service/internal/infra/memory"
	"group-quiz-service/internal/infra/rabbitmq"
	infraredis "group-quiz-service/internal/infra/redis"
	"group-quiz-service/internal/metrics"
	"group-quiz-service/internal/timer"
	transport "group-quiz-service/internal/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadRuntime(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := openBackends(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer b.Close()

	exchange := cfg.RabbitMQ.Exchange
	if exchange == "" {
		exchange = rabbitmq.DefaultExchange
	}
	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, exchange, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var (
		store        app.SessionRepository
		participants app.ParticipantTracker
	)
	if b.redis != nil {
		store = infraredis.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, time.Hour))
		participants = infraredis.NewParticipantSet(b.redis)
	} else {
		store = memory.NewSessionStore()
		participants = memory.NewParticipantSet()
	}

	policy, err := app.NewScoringPolicy(cfg.Engine.Scoring, cfg.Engine.BasePoints, cfg.Engine.MaxTimeBonus)
	if err != nil {
		return err
	}

	wall := timer.NewWall()
	defer wall.Close()
	hub := transport.NewHub(log)

	registry := app.NewRegistry(store, app.Deps{
		Quizzes:      b.quizzes,
		Scores:       b.scores,
		Leaderboard:  b.leaderboard,
		Timers:       wall,
		Broadcaster:  hub,
		Publisher:    publisher,
		Policy:       policy,
		Metrics:      m,
		Logger:       log,
		Participants: participants,
		Settings: app.Settings{
			DefaultQuestionTime: config.TTLDuration(cfg.Engine.QuestionTime, 10*time.Second),
			EarlyClose:          cfg.Engine.EarlyClose,
			GradingRetries:      cfg.Engine.GradingRetries,
			GradingBackoff:      config.TTLDuration(cfg.Engine.GradingBackoff, 200*time.Millisecond),
			GradingTimeout:      config.TTLDuration(cfg.Engine.GradingTimeout, 30*time.Second),
		},
	})

	admins := auth.NewStaticAdmins(cfg.Admins)
	if admins.Len() == 0 {
		log.Warn("no admins configured, nobody can start quizzes")
	}
	wsHandler := transport.NewWSHandler(registry, b.leaderboard, admins, hub, m, log)
	mux := transport.NewMux(wsHandler, transport.NewLeaderboardHandler(b.leaderboard, log), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("sessions did not stop cleanly")
	}
	return server.Shutdown(shutdownCtx)
}
