package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const DefaultExchange = "quiz.events"

// channel is the subset of *amqp091.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher emits session lifecycle events on a durable topic exchange. With an empty
// URL it is disabled and every Publish is a no-op.
type Publisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	enabled  bool
	log      logrus.FieldLogger
}

func NewPublisher(url, exchange string, log logrus.FieldLogger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if url == "" {
		log.Warn("rabbitmq url is empty, lifecycle event publishing is disabled")
		return &Publisher{exchange: exchange, log: log}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.WithField("exchange", exchange).Info("event publisher initialized")
	return &Publisher{conn: conn, channel: ch, exchange: exchange, enabled: true, log: log}, nil
}

func newPublisherWithChannel(ch channel, exchange string, log logrus.FieldLogger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, enabled: true, log: log}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if !p.enabled {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			Headers:      amqp091.Table{"event_type": routingKey},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.WithField("routing_key", routingKey).Debug("published lifecycle event")
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.WithError(err).Warn("close rabbitmq channel failed")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
