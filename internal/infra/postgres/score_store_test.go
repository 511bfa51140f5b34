package postgres

import (
	"strings"
	"testing"
	"time"
)

func TestIncrementQueryIsSingleUpsert(t *testing.T) {
	at := time.Date(2024, 11, 22, 9, 0, 5, 0, time.UTC)
	query, args, err := incrementQuery("quiz-1", "alice", 10, true, at)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{
		"INSERT INTO quiz_scores",
		"VALUES ($1,$2,$3,$4,$5,now())",
		"ON CONFLICT (quiz_id, participant_id) DO UPDATE",
		"score = quiz_scores.score + EXCLUDED.score",
		"RETURNING score, correct_count, score_reached_at",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected %q in query:\n%s", want, query)
		}
	}
	if len(args) != 5 || args[0] != "quiz-1" || args[1] != "alice" || args[2] != 10 || args[3] != 1 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestTopQueryOrdersByScoreThenReachedAt(t *testing.T) {
	query, args, err := topQuery("quiz-1", 10)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(query, "WHERE quiz_id = $1") {
		t.Fatalf("expected dollar placeholder, got %s", query)
	}
	if !strings.Contains(query, "ORDER BY score DESC, score_reached_at ASC, participant_id ASC") {
		t.Fatalf("unexpected ordering: %s", query)
	}
	if !strings.Contains(query, "LIMIT 10") {
		t.Fatalf("expected limit, got %s", query)
	}
	if len(args) != 1 || args[0] != "quiz-1" {
		t.Fatalf("unexpected args %v", args)
	}
}
