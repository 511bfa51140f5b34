package memory

import (
	"context"
	"sync"
)

// ParticipantSet tracks distinct participant ids for the lifetime of the process.
type ParticipantSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewParticipantSet() *ParticipantSet {
	return &ParticipantSet{ids: make(map[string]struct{})}
}

func (p *ParticipantSet) Track(_ context.Context, participantID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[participantID] = struct{}{}
	return int64(len(p.ids)), nil
}
