package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no quiz session is active for a group.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrAlreadyActive is returned when a group already runs a quiz.
	ErrAlreadyActive = errors.New("a quiz is already active in this group")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates quiz content violates its invariants.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrQuizEnded is returned for operations on a session that already finished.
	ErrQuizEnded = errors.New("quiz ended")
	// ErrScoreStoreUnavailable indicates score writes kept failing after retries.
	ErrScoreStoreUnavailable = errors.New("score store unavailable")
	// ErrTimerUnavailable indicates a question deadline could not be armed.
	ErrTimerUnavailable = errors.New("timer service unavailable")
	// ErrNotAdmin is returned when a non-admin issues an admin command.
	ErrNotAdmin = errors.New("admin privileges required")
	// ErrShuttingDown is returned for starts after the registry began draining.
	ErrShuttingDown = errors.New("quiz engine shutting down")
)
