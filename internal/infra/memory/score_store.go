package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"group-quiz-service/internal/domain"
)

// ScoreStore keeps score records in process memory. Suitable for tests and demos;
// records do not survive a restart.
type ScoreStore struct {
	mu      sync.Mutex
	records map[string]map[string]*domain.ScoreRecord // quizID -> participantID -> record
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{records: make(map[string]map[string]*domain.ScoreRecord)}
}

func (s *ScoreStore) Increment(_ context.Context, quizID, participantID string, points int, correct bool, at time.Time) (domain.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParticipant, ok := s.records[quizID]
	if !ok {
		byParticipant = make(map[string]*domain.ScoreRecord)
		s.records[quizID] = byParticipant
	}
	rec, ok := byParticipant[participantID]
	if !ok {
		rec = &domain.ScoreRecord{QuizID: quizID, ParticipantID: participantID, ReachedAt: at}
		byParticipant[participantID] = rec
	}
	rec.Score += points
	if correct {
		rec.CorrectAnswers++
	}
	if points > 0 {
		rec.ReachedAt = at
	}
	return *rec, nil
}

func (s *ScoreStore) TopN(_ context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.records[quizID]))
	for _, rec := range s.records[quizID] {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID:  rec.ParticipantID,
			Score:          rec.Score,
			CorrectAnswers: rec.CorrectAnswers,
			ReachedAt:      rec.ReachedAt,
		})
	}
	s.mu.Unlock()

	SortLeaderboard(entries)
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *ScoreStore) Clear(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, quizID)
	return nil
}

// Record returns the stored record, if any.
func (s *ScoreStore) Record(quizID, participantID string) (domain.ScoreRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[quizID][participantID]
	if !ok {
		return domain.ScoreRecord{}, false
	}
	return *rec, true
}

// SortLeaderboard orders by score desc, then by who reached the score earlier, then by id.
func SortLeaderboard(entries []domain.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].ReachedAt.Equal(entries[j].ReachedAt) {
			return entries[i].ReachedAt.Before(entries[j].ReachedAt)
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
}
