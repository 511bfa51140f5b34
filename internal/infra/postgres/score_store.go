package postgres

import (
	"context"
	"fmt"
	"time"

	"group-quiz-service/internal/domain"
	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"
)

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ScoreStore keeps per-quiz scores in the quiz_scores table. Increments are a single
// upsert, so concurrent grading never loses an update.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

func (s *ScoreStore) Increment(ctx context.Context, quizID, participantID string, points int, correct bool, at time.Time) (domain.ScoreRecord, error) {
	query, args, err := incrementQuery(quizID, participantID, points, correct, at)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("build increment: %w", err)
	}

	rec := domain.ScoreRecord{QuizID: quizID, ParticipantID: participantID}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&rec.Score, &rec.CorrectAnswers, &rec.ReachedAt); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("increment score: %w", err)
	}
	return rec, nil
}

func incrementQuery(quizID, participantID string, points int, correct bool, at time.Time) (string, []interface{}, error) {
	correctCount := 0
	if correct {
		correctCount = 1
	}
	return sqlBuilder.Insert("quiz_scores").
		Columns("quiz_id", "participant_id", "score", "correct_count", "score_reached_at", "updated_at").
		Values(quizID, participantID, points, correctCount, at.UTC(), squirrel.Expr("now()")).
		Suffix(`ON CONFLICT (quiz_id, participant_id) DO UPDATE SET
			score = quiz_scores.score + EXCLUDED.score,
			correct_count = quiz_scores.correct_count + EXCLUDED.correct_count,
			score_reached_at = CASE WHEN EXCLUDED.score > 0 THEN EXCLUDED.score_reached_at ELSE quiz_scores.score_reached_at END,
			updated_at = now()
		RETURNING score, correct_count, score_reached_at`).
		ToSql()
}

func (s *ScoreStore) TopN(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	query, args, err := topQuery(quizID, n)
	if err != nil {
		return nil, fmt.Errorf("build top: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

func topQuery(quizID string, n int) (string, []interface{}, error) {
	q := sqlBuilder.Select("participant_id", "score", "correct_count", "score_reached_at").
		From("quiz_scores").
		Where(squirrel.Eq{"quiz_id": quizID}).
		OrderBy("score DESC", "score_reached_at ASC", "participant_id ASC")
	if n > 0 {
		q = q.Limit(uint64(n))
	}
	return q.ToSql()
}

func (s *ScoreStore) Clear(ctx context.Context, quizID string) error {
	query, args, err := sqlBuilder.Delete("quiz_scores").Where(squirrel.Eq{"quiz_id": quizID}).ToSql()
	if err != nil {
		return fmt.Errorf("build clear: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}
	return nil
}
