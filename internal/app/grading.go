package app

import (
	"sort"
	"sync"
	"time"

	"group-quiz-service/internal/domain"
)

// GradeQuestion turns the recorded answers for one question into per-participant deltas.
// It is a pure function of its inputs, so replaying it yields identical deltas.
func GradeQuestion(question domain.Question, answers []domain.Answer, openedAt time.Time, window time.Duration, policy ScoringPolicy) []domain.ScoreDelta {
	deltas := make([]domain.ScoreDelta, 0, len(answers))
	for _, a := range answers {
		delta := domain.ScoreDelta{
			ParticipantID: a.ParticipantID,
			OptionIndex:   a.OptionIndex,
			AnsweredAt:    a.SubmittedAt,
		}
		if a.OptionIndex == question.CorrectIndex {
			elapsed := a.SubmittedAt.Sub(openedAt)
			if elapsed < 0 {
				elapsed = 0
			}
			delta.Correct = true
			delta.Points = policy.Points(elapsed, window)
		}
		deltas = append(deltas, delta)
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].ParticipantID < deltas[j].ParticipantID
	})
	return deltas
}

// answerBook records the answers for one open question; the first answer per participant wins.
type answerBook struct {
	answers sync.Map // participantID -> domain.Answer
}

func newAnswerBook() *answerBook {
	return &answerBook{}
}

func (b *answerBook) record(a domain.Answer) bool {
	_, loaded := b.answers.LoadOrStore(a.ParticipantID, a)
	return !loaded
}

func (b *answerBook) get(participantID string) (domain.Answer, bool) {
	v, ok := b.answers.Load(participantID)
	if !ok {
		return domain.Answer{}, false
	}
	return v.(domain.Answer), true
}

func (b *answerBook) snapshot() []domain.Answer {
	var out []domain.Answer
	b.answers.Range(func(_, v any) bool {
		out = append(out, v.(domain.Answer))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}
