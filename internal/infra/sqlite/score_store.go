// Package sqlite is a single-node durable score store for deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"group-quiz-service/internal/domain"
	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

type ScoreStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*ScoreStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &ScoreStore{db: db}, nil
}

func (s *ScoreStore) Close() error {
	return s.db.Close()
}

func (s *ScoreStore) Increment(ctx context.Context, quizID, participantID string, points int, correct bool, at time.Time) (domain.ScoreRecord, error) {
	correctCount := 0
	if correct {
		correctCount = 1
	}
	upsert, args, err := sqlBuilder.Insert("quiz_scores").
		Columns("quiz_id", "participant_id", "score", "correct_count", "score_reached_at").
		Values(quizID, participantID, points, correctCount, at.UTC()).
		Suffix(`ON CONFLICT (quiz_id, participant_id) DO UPDATE SET
			score = quiz_scores.score + excluded.score,
			correct_count = quiz_scores.correct_count + excluded.correct_count,
			score_reached_at = CASE WHEN excluded.score > 0 THEN excluded.score_reached_at ELSE quiz_scores.score_reached_at END,
			updated_at = CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("build increment: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("begin increment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("increment score: %w", err)
	}
	rec := domain.ScoreRecord{QuizID: quizID, ParticipantID: participantID}
	err = tx.QueryRowContext(ctx,
		`SELECT score, correct_count, score_reached_at FROM quiz_scores WHERE quiz_id = ? AND participant_id = ?`,
		quizID, participantID,
	).Scan(&rec.Score, &rec.CorrectAnswers, &rec.ReachedAt)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("read score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("commit increment: %w", err)
	}
	return rec, nil
}

func (s *ScoreStore) TopN(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	q := sqlBuilder.Select("participant_id", "score", "correct_count", "score_reached_at").
		From("quiz_scores").
		Where(squirrel.Eq{"quiz_id": quizID}).
		OrderBy("score DESC", "score_reached_at ASC", "participant_id ASC")
	if n > 0 {
		q = q.Limit(uint64(n))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.ParticipantID, &e.Score, &e.CorrectAnswers, &e.ReachedAt); err != nil {
			return nil, fmt.Errorf("scan top: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *ScoreStore) Clear(ctx context.Context, quizID string) error {
	query, args, err := sqlBuilder.Delete("quiz_scores").Where(squirrel.Eq{"quiz_id": quizID}).ToSql()
	if err != nil {
		return fmt.Errorf("build clear: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}
	return nil
}
