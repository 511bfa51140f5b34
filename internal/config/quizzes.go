package config

import (
	"fmt"
	"os"

	"group-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// QuizFile is the layout of a quiz seed file:
//
//	quizzes:
//	  - id: capitals
//	    title: Capitals
//	    time_limit_seconds: 10
//	    questions:
//	      - prompt: Capital of France?
//	        options: [Berlin, Paris, Rome]
//	        correct: 1
type QuizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadQuizzes reads and validates every quiz in a seed file.
func LoadQuizzes(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file QuizFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := make(map[string]bool, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if err := quiz.Validate(); err != nil {
			return nil, fmt.Errorf("quiz %q: %w", quiz.ID, err)
		}
		if seen[quiz.ID] {
			return nil, fmt.Errorf("quiz %q: %w: duplicate id", quiz.ID, domain.ErrInvalidQuiz)
		}
		seen[quiz.ID] = true
	}
	return file.Quizzes, nil
}
