package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher routes exhausted notifications to the dead-letter exchange.
type RabbitMQPublisher struct {
	client *RabbitMQ
}

var _ DeadLetterPublisher = (*RabbitMQPublisher)(nil)

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) PublishExhausted(ctx context.Context, msg ExhaustedMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	publishing, err := exhaustedPublishing(msg)
	if err != nil {
		return err
	}

	if err := p.client.publish(ctx, DeadLetterExchange, ExhaustedRoutingKey, publishing); err != nil {
		return fmt.Errorf("failed to publish exhausted notification %s: %w", msg.NotificationID, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func exhaustedPublishing(msg ExhaustedMessage) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid exhausted message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal exhausted message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     msg.ExhaustedAt.UTC(),
		MessageId:     msg.NotificationID,
		CorrelationId: msg.RunID,
		Type:          "notification.exhausted",
		Body:          payload,
	}, nil
}
