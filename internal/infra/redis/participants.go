package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const participantsKey = "quiz_metrics:participants"

// ParticipantSet counts distinct participants in a Redis set shared by every engine
// process, so the count survives restarts.
type ParticipantSet struct {
	client *redis.Client
}

func NewParticipantSet(client *redis.Client) *ParticipantSet {
	return &ParticipantSet{client: client}
}

func (p *ParticipantSet) Track(ctx context.Context, participantID string) (int64, error) {
	var card *redis.IntCmd
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, participantsKey, participantID)
		card = pipe.SCard(ctx, participantsKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("track participant %s: %w", participantID, err)
	}
	return card.Val(), nil
}
