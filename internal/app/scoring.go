package app

import (
	"fmt"
	"time"
)

// ScoringPolicy awards points for a correct answer given how long after the question
// opened it arrived. Implementations must be non-increasing in elapsed.
type ScoringPolicy interface {
	Points(elapsed, window time.Duration) int
}

// FlatScoring awards Base points regardless of speed.
type FlatScoring struct {
	Base int
}

func (f FlatScoring) Points(time.Duration, time.Duration) int {
	return f.Base
}

// LinearDecayScoring awards Base plus a bonus that decays linearly from MaxBonus
// (instant answer) to 0 (answer at the deadline).
type LinearDecayScoring struct {
	Base     int
	MaxBonus int
}

func (l LinearDecayScoring) Points(elapsed, window time.Duration) int {
	score := l.Base
	if window <= 0 {
		return score
	}
	ratio := float64(window-elapsed) / float64(window)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return score + int(float64(l.MaxBonus)*ratio)
}

// NewScoringPolicy maps a config name to a policy.
func NewScoringPolicy(name string, base, maxBonus int) (ScoringPolicy, error) {
	if base <= 0 {
		base = 10
	}
	switch name {
	case "", "flat":
		return FlatScoring{Base: base}, nil
	case "linear":
		return LinearDecayScoring{Base: base, MaxBonus: maxBonus}, nil
	default:
		return nil, fmt.Errorf("unknown scoring policy %q", name)
	}
}
