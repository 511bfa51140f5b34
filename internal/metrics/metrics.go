// Package metrics holds the engine's prometheus collectors. Collectors are registered on
// the registerer passed to New so each process (or test) owns its own set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	QuizzesStarted   prometheus.Counter
	QuizzesFinished  *prometheus.CounterVec
	AnswersSubmitted *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	GradingDuration  prometheus.Histogram
	ScoreRetries     prometheus.Counter
	CacheLookups     *prometheus.CounterVec

	Commands           *prometheus.CounterVec
	QuizzesCreated     prometheus.Gauge
	UniqueParticipants prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuizzesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Total number of quiz sessions started",
		}),
		QuizzesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_sessions_finished_total",
			Help: "Total number of quiz sessions that reached a terminal state",
		}, []string{"reason"}), // reason: completed/stopped/failed
		AnswersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_answers_submitted_total",
			Help: "Answers routed to sessions, by outcome",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_sessions_active",
			Help: "Current number of active quiz sessions",
		}),
		GradingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_grading_duration_seconds",
			Help:    "Time spent grading a question and committing its score deltas",
			Buckets: prometheus.DefBuckets,
		}),
		ScoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_score_store_retries_total",
			Help: "Score store increments retried after a failure",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_leaderboard_cache_lookups_total",
			Help: "Leaderboard cache lookups, by result",
		}, []string{"result"}), // result: hit/miss
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_commands_total",
			Help: "Inbound transport commands, by type",
		}, []string{"command"}),
		QuizzesCreated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quizzes_created",
			Help: "Quiz definitions created in the definition store",
		}),
		UniqueParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_unique_participants",
			Help: "Distinct participants that ever had an answer accepted",
		}),
	}
	reg.MustRegister(
		m.QuizzesStarted,
		m.QuizzesFinished,
		m.AnswersSubmitted,
		m.ActiveSessions,
		m.GradingDuration,
		m.ScoreRetries,
		m.CacheLookups,
		m.Commands,
		m.QuizzesCreated,
		m.UniqueParticipants,
	)
	return m
}

// NewUnregistered returns collectors attached to a throwaway registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
