package queue

import "context"

const (
	// DeadLetterExchange receives notifications that will not be retried.
	DeadLetterExchange = "notifications.dead-letter"
	// ExhaustedQueue is bound to DeadLetterExchange for operator follow-up.
	ExhaustedQueue = "notifications.exhausted"
	// ExhaustedRoutingKey routes exhausted notifications to ExhaustedQueue.
	ExhaustedRoutingKey = "exhausted"
)

// DeadLetterPublisher signals that a notification reached its terminal failed state.
type DeadLetterPublisher interface {
	PublishExhausted(ctx context.Context, msg ExhaustedMessage) error
	Close() error
}
