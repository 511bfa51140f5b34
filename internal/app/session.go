package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/timer"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	reasonCompleted   = "completed"
	reasonStopped     = "stopped"
	reasonFailed      = "failed"
	reasonDeadline    = "deadline"
	reasonAllAnswered = "all_answered"
)

// Session is the state machine for one quiz running in one group.
//
// transition serializes every state change (begin, deadline, early close, stop, retry)
// and is held across grading I/O. mu guards the fields answer submission reads, so
// submitters never wait on the score store.
type Session struct {
	id      string
	groupID string
	quiz    domain.Quiz
	reg     *Registry
	deps    *Deps
	log     logrus.FieldLogger

	transition sync.Mutex

	mu        sync.RWMutex
	state     domain.SessionState
	index     int
	epoch     uint64
	startedAt time.Time
	openedAt  time.Time
	window    time.Duration
	deadline  time.Time
	answers   *answerBook
	timer     timer.Handle
	armed     bool
	pending   int // question awaiting a retried grading pass, -1 if none
	known     map[string]struct{}
	scores    map[string]*domain.ScoreRecord

	// guarded by transition
	graded    map[int]bool
	committed map[int]map[string]bool

	doneOnce sync.Once
	done     chan struct{}
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID            string                    `json:"id"`
	GroupID       string                    `json:"groupId"`
	QuizID        string                    `json:"quizId"`
	State         domain.SessionState       `json:"state"`
	QuestionIndex int                       `json:"questionIndex"`
	Deadline      time.Time                 `json:"deadline"`
	StartedAt     time.Time                 `json:"startedAt"`
	Scores        []domain.LeaderboardEntry `json:"scores"`
}

// LifecycleEvent is published on session milestones.
type LifecycleEvent struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	SessionID     string              `json:"sessionId"`
	GroupID       string              `json:"groupId"`
	QuizID        string              `json:"quizId"`
	QuestionIndex int                 `json:"questionIndex"`
	Results       []domain.ScoreDelta `json:"results,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	At            time.Time           `json:"at"`
}

func newSession(reg *Registry, groupID string, quiz domain.Quiz) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		groupID: groupID,
		quiz:    quiz,
		reg:     reg,
		deps:    &reg.deps,
		log: reg.deps.Logger.WithFields(logrus.Fields{
			"session_id": id,
			"group_id":   groupID,
			"quiz_id":    quiz.ID,
		}),
		state:     domain.StateIdle,
		answers:   newAnswerBook(),
		pending:   -1,
		known:     make(map[string]struct{}),
		scores:    make(map[string]*domain.ScoreRecord),
		graded:    make(map[int]bool),
		committed: make(map[int]map[string]bool),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) GroupID() string { return s.groupID }
func (s *Session) QuizID() string  { return s.quiz.ID }

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SubmitAnswer records participantID's choice for the open question. The first answer
// per question wins; later ones are rejected, never overwritten.
func (s *Session) SubmitAnswer(participantID string, optionIndex int, at time.Time) domain.AnswerOutcome {
	s.mu.RLock()
	switch {
	case s.state.Terminal():
		s.mu.RUnlock()
		return domain.OutcomeQuizEnded
	case s.state != domain.StateQuestionOpen:
		s.mu.RUnlock()
		return domain.OutcomeQuestionClosed
	case !at.Before(s.deadline):
		// deadline passed but the timer has not been handled yet
		s.mu.RUnlock()
		return domain.OutcomeQuestionClosed
	}
	question := s.quiz.Questions[s.index]
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		s.mu.RUnlock()
		return domain.OutcomeInvalidOption
	}
	if !s.answers.record(domain.Answer{ParticipantID: participantID, OptionIndex: optionIndex, SubmittedAt: at}) {
		s.mu.RUnlock()
		return domain.OutcomeAlreadyAnswered
	}
	closeEarly := s.deps.Settings.EarlyClose && s.allKnownAnsweredLocked()
	index, epoch := s.index, s.epoch
	s.mu.RUnlock()

	if closeEarly {
		go s.closeQuestion(index, epoch, reasonAllAnswered)
	}
	return domain.OutcomeAccepted
}

func (s *Session) allKnownAnsweredLocked() bool {
	if len(s.known) == 0 {
		return false
	}
	for participantID := range s.known {
		if _, ok := s.answers.get(participantID); !ok {
			return false
		}
	}
	return true
}

// Snapshot returns the current state and accumulated scores.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]domain.LeaderboardEntry, 0, len(s.scores))
	for _, rec := range s.scores {
		scores = append(scores, domain.LeaderboardEntry{
			ParticipantID:  rec.ParticipantID,
			Score:          rec.Score,
			CorrectAnswers: rec.CorrectAnswers,
			ReachedAt:      rec.ReachedAt,
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if !scores[i].ReachedAt.Equal(scores[j].ReachedAt) {
			return scores[i].ReachedAt.Before(scores[j].ReachedAt)
		}
		return scores[i].ParticipantID < scores[j].ParticipantID
	})
	return SessionSnapshot{
		ID:            s.id,
		GroupID:       s.groupID,
		QuizID:        s.quiz.ID,
		State:         s.state,
		QuestionIndex: s.index,
		Deadline:      s.deadline,
		StartedAt:     s.startedAt,
		Scores:        scores,
	}
}

// RetryGrading re-runs the grading pass that halted the session in StateFailed.
// Participants already committed are skipped, so nothing is counted twice.
func (s *Session) RetryGrading(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.RLock()
	if s.state != domain.StateFailed || s.pending < 0 {
		s.mu.RUnlock()
		return fmt.Errorf("no grading pass to retry: %w", domain.ErrQuizEnded)
	}
	index, book := s.pending, s.answers
	s.mu.RUnlock()

	if err := s.grade(ctx, index, book); err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = -1
	s.state = domain.StateCompleted
	s.mu.Unlock()

	s.log.WithField("question", index).Info("retried grading committed")
	s.broadcastFinal(ctx, reasonCompleted)
	return nil
}

func (s *Session) begin(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.state != domain.StateIdle {
		// stopped before it began
		s.mu.Unlock()
		return nil
	}
	s.startedAt = s.deps.Timers.Now()
	s.mu.Unlock()

	if len(s.quiz.Questions) == 0 {
		s.complete(ctx, reasonCompleted)
		return nil
	}
	return s.open(ctx, 0)
}

// open moves to QuestionOpen(index), arms its deadline and broadcasts the question.
// Caller holds transition.
func (s *Session) open(ctx context.Context, index int) error {
	now := s.deps.Timers.Now()
	window := s.quiz.QuestionDuration(index, s.deps.Settings.DefaultQuestionTime)

	s.mu.Lock()
	s.index = index
	s.epoch++
	epoch := s.epoch
	s.openedAt = now
	s.window = window
	s.deadline = now.Add(window)
	s.answers = newAnswerBook()
	s.state = domain.StateQuestionOpen
	h, err := s.deps.Timers.Arm(window, func() {
		s.closeQuestion(index, epoch, reasonDeadline)
	})
	if err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("%w: arm question %d: %v", domain.ErrTimerUnavailable, index, err)
		s.fail(ctx, err, -1)
		return err
	}
	s.timer, s.armed = h, true
	deadline := s.deadline
	s.mu.Unlock()

	if err := s.reg.sessions.Refresh(s.groupID, s); err != nil {
		s.log.WithError(err).Warn("group claim refresh failed")
	}

	question := s.quiz.Questions[index]
	s.log.WithFields(logrus.Fields{"question": index, "deadline": deadline}).Debug("question opened")
	s.deps.Broadcaster.Broadcast(s.groupID, domain.Message{
		Type: domain.MessageQuestion,
		Payload: domain.QuestionBroadcast{
			QuizID:   s.quiz.ID,
			Index:    index,
			Total:    len(s.quiz.Questions),
			Prompt:   question.Prompt,
			Options:  question.Options,
			Deadline: deadline,
		},
	})
	return nil
}

// closeQuestion handles a deadline or early-close event. The event carries the
// question and epoch it was issued for; if the session has moved on it is a no-op.
func (s *Session) closeQuestion(index int, epoch uint64, reason string) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.state != domain.StateQuestionOpen || s.index != index || s.epoch != epoch {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"question": index, "reason": reason}).Debug("stale close event ignored")
		return
	}
	s.state = domain.StateGrading
	if s.armed {
		s.deps.Timers.Cancel(s.timer)
		s.armed = false
	}
	book := s.answers
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Settings.GradingTimeout)
	defer cancel()

	if err := s.grade(ctx, index, book); err != nil {
		s.fail(ctx, err, index)
		return
	}
	if index+1 < len(s.quiz.Questions) {
		// open already moved the session to StateFailed if arming failed
		_ = s.open(ctx, index+1)
		return
	}
	s.complete(ctx, reasonCompleted)
}

// stop ends the session from any non-terminal state, grading the open question first.
func (s *Session) stop(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return domain.ErrQuizEnded
	}
	if s.armed {
		s.deps.Timers.Cancel(s.timer)
		s.armed = false
	}
	if s.state != domain.StateQuestionOpen {
		s.mu.Unlock()
		s.complete(ctx, reasonStopped)
		return nil
	}
	s.state = domain.StateGrading
	index, book := s.index, s.answers
	s.mu.Unlock()

	if err := s.grade(ctx, index, book); err != nil {
		s.fail(ctx, err, index)
		return err
	}
	s.complete(ctx, reasonStopped)
	return nil
}

// grade scores question index and commits the deltas. Caller holds transition.
func (s *Session) grade(ctx context.Context, index int, book *answerBook) error {
	if s.graded[index] {
		return nil
	}
	started := time.Now()

	s.mu.RLock()
	openedAt, window := s.openedAt, s.window
	s.mu.RUnlock()

	question := s.quiz.Questions[index]
	deltas := GradeQuestion(question, book.snapshot(), openedAt, window, s.deps.Policy)

	committed := s.committed[index]
	if committed == nil {
		committed = make(map[string]bool, len(deltas))
		s.committed[index] = committed
	}
	wrote := false
	for _, delta := range deltas {
		if committed[delta.ParticipantID] {
			continue
		}
		rec, err := s.commit(ctx, delta)
		if err != nil {
			if wrote {
				// the deltas already committed are durable and must show up
				s.invalidate(context.WithoutCancel(ctx))
			}
			return fmt.Errorf("%w: question %d participant %s: %v", domain.ErrScoreStoreUnavailable, index, delta.ParticipantID, err)
		}
		wrote = true
		committed[delta.ParticipantID] = true
		s.accumulate(delta)
		s.log.WithFields(logrus.Fields{"participant_id": delta.ParticipantID, "total": rec.Score}).Debug("score committed")
	}
	s.graded[index] = true
	s.deps.Metrics.GradingDuration.Observe(time.Since(started).Seconds())

	// must land before anything announces the results
	s.invalidate(ctx)

	s.log.WithFields(logrus.Fields{"question": index, "answers": len(deltas)}).Info("question graded")
	s.deps.Broadcaster.Broadcast(s.groupID, domain.Message{
		Type: domain.MessageGraded,
		Payload: domain.GradedBroadcast{
			QuizID:       s.quiz.ID,
			Index:        index,
			CorrectIndex: question.CorrectIndex,
			Results:      deltas,
		},
	})
	ev := s.event("quiz.question_graded")
	ev.QuestionIndex = index
	ev.Results = deltas
	s.reg.publish(ctx, ev.Type, ev)
	return nil
}

func (s *Session) invalidate(ctx context.Context) {
	if err := s.deps.Leaderboard.Invalidate(ctx, s.quiz.ID); err != nil {
		s.log.WithError(err).Warn("leaderboard invalidation failed")
	}
}

func (s *Session) commit(ctx context.Context, delta domain.ScoreDelta) (domain.ScoreRecord, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.deps.Settings.GradingBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, s.deps.Settings.GradingRetries), ctx)

	var rec domain.ScoreRecord
	op := func() error {
		var err error
		rec, err = s.deps.Scores.Increment(ctx, s.quiz.ID, delta.ParticipantID, delta.Points, delta.Correct, delta.AnsweredAt)
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.deps.Metrics.ScoreRetries.Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"participant_id": delta.ParticipantID,
			"retry_in":       wait,
		}).Warn("score increment failed, retrying")
	}
	err := backoff.RetryNotify(op, policy, notify)
	return rec, err
}

func (s *Session) accumulate(delta domain.ScoreDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[delta.ParticipantID] = struct{}{}
	acc, ok := s.scores[delta.ParticipantID]
	if !ok {
		acc = &domain.ScoreRecord{QuizID: s.quiz.ID, ParticipantID: delta.ParticipantID, ReachedAt: delta.AnsweredAt}
		s.scores[delta.ParticipantID] = acc
	}
	if delta.Correct {
		acc.CorrectAnswers++
	}
	if delta.Points > 0 {
		acc.Score += delta.Points
		acc.ReachedAt = delta.AnsweredAt
	}
}

// complete finishes the session normally or after a stop. Caller holds transition.
func (s *Session) complete(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.armed {
		s.deps.Timers.Cancel(s.timer)
		s.armed = false
	}
	s.state = domain.StateCompleted
	s.mu.Unlock()

	s.reg.release(s.groupID, s)
	s.deps.Metrics.QuizzesFinished.WithLabelValues(reason).Inc()
	s.log.WithField("reason", reason).Info("quiz session completed")

	s.broadcastFinal(ctx, reason)
	ev := s.event("quiz.completed")
	ev.Reason = reason
	s.reg.publish(ctx, ev.Type, ev)
	s.doneOnce.Do(func() { close(s.done) })
}

// fail halts the session in StateFailed. Answers for pending stay in place and the
// registry keeps the session so RetryGrading can reach it.
func (s *Session) fail(ctx context.Context, cause error, pending int) {
	s.mu.Lock()
	if s.armed {
		s.deps.Timers.Cancel(s.timer)
		s.armed = false
	}
	s.state = domain.StateFailed
	s.pending = pending
	s.mu.Unlock()

	s.reg.release(s.groupID, s)
	if pending >= 0 {
		s.reg.park(s)
	}
	s.deps.Metrics.QuizzesFinished.WithLabelValues(reasonFailed).Inc()
	s.log.WithError(cause).Error("quiz session halted")

	message := "quiz halted: scores could not be saved"
	if errors.Is(cause, domain.ErrTimerUnavailable) {
		message = "quiz halted: question timer unavailable"
	}
	s.deps.Broadcaster.Broadcast(s.groupID, domain.Message{
		Type:    domain.MessageError,
		Payload: map[string]string{"message": message},
	})
	ev := s.event("quiz.failed")
	ev.Reason = cause.Error()
	s.reg.publish(ctx, ev.Type, ev)
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) broadcastFinal(ctx context.Context, reason string) {
	lb, err := s.deps.Leaderboard.Get(ctx, s.quiz.ID)
	if err != nil {
		s.log.WithError(err).Warn("final leaderboard unavailable")
		lb = domain.Leaderboard{QuizID: s.quiz.ID, UpdatedAt: s.deps.Timers.Now()}
	}
	s.deps.Broadcaster.Broadcast(s.groupID, domain.Message{
		Type:    domain.MessageQuizEnded,
		Payload: domain.QuizEndedBroadcast{QuizID: s.quiz.ID, Reason: reason, Leaderboard: lb},
	})
}

func (s *Session) event(kind string) LifecycleEvent {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	return LifecycleEvent{
		ID:            uuid.NewString(),
		Type:          kind,
		SessionID:     s.id,
		GroupID:       s.groupID,
		QuizID:        s.quiz.ID,
		QuestionIndex: index,
		At:            s.deps.Timers.Now(),
	}
}
