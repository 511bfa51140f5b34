package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"group-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

// quizRow maps the quizzes table for bun.
type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string          `bun:"id,pk"`
	Title     string          `bun:"title"`
	Data      json.RawMessage `bun:"data,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at"`
}

// QuizWriter upserts quiz definitions; used by seeding and admin tooling.
type QuizWriter struct {
	db *bun.DB
}

func NewQuizWriter(db *bun.DB) *QuizWriter {
	return &QuizWriter{db: db}
}

// SaveQuiz upserts quiz and reports whether it did not exist before.
func (w *QuizWriter) SaveQuiz(ctx context.Context, quiz domain.Quiz) (bool, error) {
	if err := quiz.Validate(); err != nil {
		return false, err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return false, fmt.Errorf("marshal quiz %s: %w", quiz.ID, err)
	}

	created := false
	err = w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*quizRow)(nil)).Where("id = ?", quiz.ID).Exists(ctx)
		if err != nil {
			return err
		}
		row := &quizRow{ID: quiz.ID, Title: quiz.Title, Data: data, UpdatedAt: time.Now().UTC()}
		_, err = tx.NewInsert().
			Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("data = EXCLUDED.data").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		created = !exists
		return err
	})
	if err != nil {
		return false, fmt.Errorf("save quiz %s: %w", quiz.ID, err)
	}
	return created, nil
}
