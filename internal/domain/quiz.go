package domain

import (
	"fmt"
	"time"
)

// Validate checks every question has at least two options and an in-bounds correct index.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options", ErrInvalidQuiz, i, len(question.Options))
		}
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct index %d out of range", ErrInvalidQuiz, i, question.CorrectIndex)
		}
		if question.TimeLimitSeconds < 0 {
			return fmt.Errorf("%w: question %d negative time limit", ErrInvalidQuiz, i)
		}
	}
	return nil
}

// QuestionDuration resolves the answer window: question override, then quiz default, then fallback.
func (q Quiz) QuestionDuration(index int, fallback time.Duration) time.Duration {
	if index >= 0 && index < len(q.Questions) && q.Questions[index].TimeLimitSeconds > 0 {
		return time.Duration(q.Questions[index].TimeLimitSeconds) * time.Second
	}
	if q.TimeLimitSeconds > 0 {
		return time.Duration(q.TimeLimitSeconds) * time.Second
	}
	return fallback
}
