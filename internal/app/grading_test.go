package app

import (
	"sync"
	"testing"
	"time"

	"group-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeQuestionIsDeterministic(t *testing.T) {
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	question := domain.Question{Prompt: "2+2", Options: []string{"3", "4"}, CorrectIndex: 1}
	answers := []domain.Answer{
		{ParticipantID: "b", OptionIndex: 0, SubmittedAt: opened.Add(2 * time.Second)},
		{ParticipantID: "a", OptionIndex: 1, SubmittedAt: opened.Add(5 * time.Second)},
	}
	policy := LinearDecayScoring{Base: 10, MaxBonus: 10}

	first := GradeQuestion(question, answers, opened, 10*time.Second, policy)
	second := GradeQuestion(question, answers, opened, 10*time.Second, policy)
	require.Equal(t, first, second)

	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].ParticipantID)
	assert.True(t, first[0].Correct)
	assert.Equal(t, 15, first[0].Points)
	assert.Equal(t, "b", first[1].ParticipantID)
	assert.False(t, first[1].Correct)
	assert.Zero(t, first[1].Points)
}

func TestScoringPoliciesAreMonotonic(t *testing.T) {
	window := 30 * time.Second
	policies := []ScoringPolicy{
		FlatScoring{Base: 10},
		LinearDecayScoring{Base: 10, MaxBonus: 20},
	}
	for _, p := range policies {
		prev := p.Points(0, window)
		for elapsed := time.Second; elapsed <= window+5*time.Second; elapsed += time.Second {
			cur := p.Points(elapsed, window)
			assert.LessOrEqual(t, cur, prev, "%T at %s", p, elapsed)
			assert.GreaterOrEqual(t, cur, 10, "%T never drops below base", p)
			prev = cur
		}
	}
}

func TestNewScoringPolicy(t *testing.T) {
	p, err := NewScoringPolicy("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, FlatScoring{Base: 10}, p)

	p, err = NewScoringPolicy("linear", 5, 5)
	require.NoError(t, err)
	assert.Equal(t, LinearDecayScoring{Base: 5, MaxBonus: 5}, p)

	_, err = NewScoringPolicy("exponential", 5, 5)
	assert.Error(t, err)
}

func TestAnswerBookFirstWriteWins(t *testing.T) {
	book := newAnswerBook()
	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- book.record(domain.Answer{ParticipantID: "p", OptionIndex: i})
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, book.snapshot(), 1)
}
