package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/logging"
	"group-quiz-service/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Settings tunes session behaviour.
type Settings struct {
	DefaultQuestionTime time.Duration
	// EarlyClose grades a question as soon as every known participant answered it.
	EarlyClose     bool
	GradingRetries uint64
	GradingBackoff time.Duration
	GradingTimeout time.Duration
}

// Deps is the process-scoped context handed to every session. It is built once at
// startup, before the registry accepts its first start.
type Deps struct {
	Quizzes     QuizRepository
	Scores      ScoreStore
	Leaderboard LeaderboardCache
	Timers      TimerService
	Broadcaster Broadcaster
	Publisher   EventPublisher
	Policy      ScoringPolicy
	Metrics     *metrics.Metrics
	Logger      logrus.FieldLogger
	Settings    Settings

	// Participants is optional; without it the unique participant gauge stays at zero.
	Participants ParticipantTracker
}

func (d *Deps) withDefaults() {
	if d.Broadcaster == nil {
		d.Broadcaster = noopBroadcaster{}
	}
	if d.Publisher == nil {
		d.Publisher = noopPublisher{}
	}
	if d.Policy == nil {
		d.Policy = FlatScoring{Base: 10}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewUnregistered()
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Settings.DefaultQuestionTime <= 0 {
		d.Settings.DefaultQuestionTime = 10 * time.Second
	}
	if d.Settings.GradingRetries == 0 {
		d.Settings.GradingRetries = 3
	}
	if d.Settings.GradingBackoff <= 0 {
		d.Settings.GradingBackoff = 200 * time.Millisecond
	}
	if d.Settings.GradingTimeout <= 0 {
		d.Settings.GradingTimeout = 30 * time.Second
	}
}

// Registry maps each group to at most one active quiz session.
type Registry struct {
	sessions SessionRepository
	deps     Deps

	// mu orders starts against Shutdown; starts hold it shared across check-and-insert.
	mu       sync.RWMutex
	draining bool

	// failed keeps sessions halted mid-grading reachable until they are retried.
	failedMu sync.Mutex
	failed   map[string]*Session
}

func NewRegistry(store SessionRepository, deps Deps) *Registry {
	deps.withDefaults()
	return &Registry{sessions: store, deps: deps, failed: make(map[string]*Session)}
}

// Start loads quizID and begins a session for groupID. It fails with ErrAlreadyActive
// if the group already runs a quiz.
func (r *Registry) Start(ctx context.Context, groupID, quizID string) (*Session, error) {
	quiz, err := r.deps.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}

	session := newSession(r, groupID, quiz)

	r.mu.RLock()
	if r.draining {
		r.mu.RUnlock()
		return nil, domain.ErrShuttingDown
	}
	inserted, err := r.sessions.Insert(groupID, session)
	r.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	if !inserted {
		return nil, domain.ErrAlreadyActive
	}

	r.deps.Metrics.QuizzesStarted.Inc()
	r.deps.Metrics.ActiveSessions.Inc()
	session.log.WithField("questions", len(quiz.Questions)).Info("quiz session started")
	r.publish(ctx, "quiz.started", session.event("quiz.started"))

	if err := session.begin(ctx); err != nil {
		return session, err
	}
	return session, nil
}

// Stop forcibly ends the group's session. Answers already submitted for the open
// question are still graded.
func (r *Registry) Stop(ctx context.Context, groupID string) error {
	session, ok := r.sessions.Get(groupID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	err := session.stop(ctx)
	if errors.Is(err, domain.ErrQuizEnded) {
		// lost the race against natural completion
		return domain.ErrSessionNotFound
	}
	return err
}

// RouteAnswer forwards an answer to the group's session, stamped with the engine clock.
func (r *Registry) RouteAnswer(ctx context.Context, groupID, participantID string, optionIndex int) domain.AnswerOutcome {
	var outcome domain.AnswerOutcome
	session, ok := r.sessions.Get(groupID)
	if !ok {
		outcome = domain.OutcomeNoActiveQuiz
	} else {
		outcome = session.SubmitAnswer(participantID, optionIndex, r.deps.Timers.Now())
	}
	r.deps.Metrics.AnswersSubmitted.WithLabelValues(string(outcome)).Inc()
	if outcome == domain.OutcomeAccepted {
		r.trackParticipant(ctx, participantID)
	}
	if outcome != domain.OutcomeAccepted {
		r.deps.Logger.WithFields(logrus.Fields{
			"group_id":       groupID,
			"participant_id": participantID,
			"outcome":        outcome,
		}).Debug("answer rejected")
	}
	return outcome
}

func (r *Registry) trackParticipant(ctx context.Context, participantID string) {
	if r.deps.Participants == nil {
		return
	}
	n, err := r.deps.Participants.Track(ctx, participantID)
	if err != nil {
		r.deps.Logger.WithError(err).WithField("participant_id", participantID).Warn("participant tracking failed")
		return
	}
	r.deps.Metrics.UniqueParticipants.Set(float64(n))
}

// Get returns the active session for groupID, if any.
func (r *Registry) Get(groupID string) (*Session, bool) {
	return r.sessions.Get(groupID)
}

// Active lists the groups currently running a quiz.
func (r *Registry) Active() []string {
	sessions := r.sessions.List()
	groups := make([]string, 0, len(sessions))
	for _, s := range sessions {
		groups = append(groups, s.groupID)
	}
	return groups
}

// Shutdown refuses new starts and stops every active session concurrently.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.sessions.List() {
		s := s
		g.Go(func() error {
			if err := s.stop(gctx); err != nil && !errors.Is(err, domain.ErrQuizEnded) {
				return fmt.Errorf("stop group %s: %w", s.groupID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RetryGrading re-runs the grading pass of the group's most recent session halted by a
// score store failure. The session's recorded answers are kept until this succeeds.
func (r *Registry) RetryGrading(ctx context.Context, groupID string) error {
	r.failedMu.Lock()
	session, ok := r.failed[groupID]
	r.failedMu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.RetryGrading(ctx); err != nil {
		return err
	}

	r.failedMu.Lock()
	if r.failed[groupID] == session {
		delete(r.failed, groupID)
	}
	r.failedMu.Unlock()
	return nil
}

// Failed lists the groups holding a session whose grading can be retried.
func (r *Registry) Failed() []string {
	r.failedMu.Lock()
	defer r.failedMu.Unlock()
	groups := make([]string, 0, len(r.failed))
	for groupID := range r.failed {
		groups = append(groups, groupID)
	}
	return groups
}

func (r *Registry) park(s *Session) {
	r.failedMu.Lock()
	defer r.failedMu.Unlock()
	if prev, ok := r.failed[s.groupID]; ok && prev != s {
		r.deps.Logger.WithFields(logrus.Fields{
			"group_id":   s.groupID,
			"session_id": prev.id,
		}).Warn("dropping failed session that was never retried")
	}
	r.failed[s.groupID] = s
}

func (r *Registry) release(groupID string, s *Session) {
	if r.sessions.Delete(groupID, s) {
		r.deps.Metrics.ActiveSessions.Dec()
	}
}

func (r *Registry) publish(ctx context.Context, routingKey string, payload any) {
	if err := r.deps.Publisher.Publish(ctx, routingKey, payload); err != nil {
		r.deps.Logger.WithError(err).WithField("routing_key", routingKey).Warn("publish lifecycle event failed")
	}
}
