package domain

import "time"

// Question models an MCQ question with exactly one correct option.
// Options are identified by their position.
type Question struct {
	Prompt           string   `json:"prompt" yaml:"prompt"`
	Options          []string `json:"options" yaml:"options"`
	CorrectIndex     int      `json:"correct" yaml:"correct"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds,omitempty"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID               string     `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	TimeLimitSeconds int        `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds,omitempty"`
	Questions        []Question `json:"questions" yaml:"questions"`
}

// SessionState is a position in the quiz session lifecycle.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateQuestionOpen SessionState = "question_open"
	StateGrading      SessionState = "grading"
	StateCompleted    SessionState = "completed"
	// StateFailed is terminal like StateCompleted, reached when grading or timing cannot proceed.
	StateFailed SessionState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// AnswerOutcome is the local result of routing a participant's answer.
type AnswerOutcome string

const (
	OutcomeAccepted        AnswerOutcome = "accepted"
	OutcomeAlreadyAnswered AnswerOutcome = "already_answered"
	OutcomeQuestionClosed  AnswerOutcome = "question_closed"
	OutcomeQuizEnded       AnswerOutcome = "quiz_ended"
	OutcomeNoActiveQuiz    AnswerOutcome = "no_active_quiz"
	OutcomeInvalidOption   AnswerOutcome = "invalid_option"
)

// Answer is a participant's recorded choice for the open question.
type Answer struct {
	ParticipantID string
	OptionIndex   int
	SubmittedAt   time.Time
}

// ScoreDelta is what grading awards one participant for one question.
type ScoreDelta struct {
	ParticipantID string `json:"participantId"`
	OptionIndex   int    `json:"optionIndex"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	// AnsweredAt is when the participant reached the new score.
	AnsweredAt time.Time `json:"-"`
}

// ScoreRecord is the durable per-quiz, per-participant total.
type ScoreRecord struct {
	QuizID         string
	ParticipantID  string
	Score          int
	CorrectAnswers int
	ReachedAt      time.Time
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	ParticipantID  string    `json:"participantId"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correctAnswers"`
	ReachedAt      time.Time `json:"reachedAt"`
}

// Leaderboard captures the ordered top-N scoreboard for a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Message is what the engine hands to the transport for a group broadcast.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	MessageQuestion    = "question"
	MessageGraded      = "graded"
	MessageLeaderboard = "leaderboard"
	MessageQuizEnded   = "quiz_ended"
	MessageError       = "error"
)

// QuestionBroadcast is the payload of a "question" message.
type QuestionBroadcast struct {
	QuizID   string    `json:"quizId"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Prompt   string    `json:"prompt"`
	Options  []string  `json:"options"`
	Deadline time.Time `json:"deadline"`
}

// GradedBroadcast is the payload of a "graded" message.
type GradedBroadcast struct {
	QuizID       string       `json:"quizId"`
	Index        int          `json:"index"`
	CorrectIndex int          `json:"correctIndex"`
	Results      []ScoreDelta `json:"results"`
}

// QuizEndedBroadcast is the payload of a "quiz_ended" message.
type QuizEndedBroadcast struct {
	QuizID      string      `json:"quizId"`
	Reason      string      `json:"reason"`
	Leaderboard Leaderboard `json:"leaderboard"`
}
