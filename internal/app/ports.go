package app

import (
	"context"
	"time"

	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/timer"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ScoreStore is the durable, authoritative record of per-quiz scores.
// Increment must be atomic per (quiz, participant).
type ScoreStore interface {
	Increment(ctx context.Context, quizID, participantID string, points int, correct bool, at time.Time) (domain.ScoreRecord, error)
	TopN(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error)
	Clear(ctx context.Context, quizID string) error
}

// LeaderboardCache serves top-N leaderboards, recomputing from the ScoreStore when stale.
type LeaderboardCache interface {
	Get(ctx context.Context, quizID string) (domain.Leaderboard, error)
	Invalidate(ctx context.Context, quizID string) error
	// Reset purges the durable records for quizID and the cached entry together.
	Reset(ctx context.Context, quizID string) error
}

// TimerService arms cancellable one-shot wake-ups and is the engine's clock.
type TimerService interface {
	Now() time.Time
	Arm(d time.Duration, fire func()) (timer.Handle, error)
	Cancel(h timer.Handle)
}

// Broadcaster delivers messages to every member of a group. It must not block.
type Broadcaster interface {
	Broadcast(groupID string, msg domain.Message)
}

// EventPublisher emits session lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// SessionRepository holds the groupID -> active session mapping.
// Insert is an atomic check-and-insert; Delete only removes s if it is still the registered session.
type SessionRepository interface {
	Insert(groupID string, s *Session) (bool, error)
	Get(groupID string) (*Session, bool)
	Delete(groupID string, s *Session) bool
	// Refresh extends any claim the store holds for groupID while s is still active.
	Refresh(groupID string, s *Session) error
	List() []*Session
}

// ParticipantTracker counts distinct participants across every quiz. Track returns
// the number of participants seen so far.
type ParticipantTracker interface {
	Track(ctx context.Context, participantID string) (int64, error)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, domain.Message) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
