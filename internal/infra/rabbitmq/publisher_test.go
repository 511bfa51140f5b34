package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"group-quiz-service/internal/logging"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp091.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p, err := NewPublisher("", "", logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), "quiz.started", map[string]string{"a": "b"}))
	assert.NoError(t, p.Close())
}

func TestPublishEncodesJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, DefaultExchange, logging.Discard())

	require.NoError(t, p.Publish(context.Background(), "quiz.completed", map[string]string{"groupId": "g1"}))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "quiz.completed", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp091.Persistent, ch.published[0].DeliveryMode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &body))
	assert.Equal(t, "g1", body["groupId"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublishWrapsChannelError(t *testing.T) {
	boom := errors.New("channel closed")
	p := newPublisherWithChannel(&fakeChannel{err: boom}, DefaultExchange, logging.Discard())
	err := p.Publish(context.Background(), "quiz.failed", struct{}{})
	assert.ErrorIs(t, err, boom)
}
