// Package events publishes broker domain events to a RabbitMQ topic
// exchange for external consumers (reporting pipelines, ticket automation).
// The exchange is optional infrastructure: when no AMQP URL is configured
// the broker runs without it and only the in-process stream fan-out applies.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher emits one domain event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

// Envelope is the published message body: event metadata plus the payload.
type Envelope struct {
	ID         string    `json:"id"`
	RoutingKey string    `json:"routing_key"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

// New connects to RabbitMQ and declares the durable topic exchange.
func New(url, exchange string, logger zerolog.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &rmqPublisher{conn: conn, exchange: exchange, log: logger}, nil
}

// Publish marshals the payload into an Envelope and emits it as a persistent
// JSON message. A fresh channel per publish keeps the publisher safe for
// concurrent use.
func (p *rmqPublisher) Publish(ctx context.Context, key string, payload any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	env := Envelope{
		ID:         uuid.NewString(),
		RoutingKey: key,
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err == nil {
		p.log.Info().Str("key", key).Str("exchange", p.exchange).Msg("published")
	}
	return err
}

func (p *rmqPublisher) Close() error {
	return p.conn.Close()
}
