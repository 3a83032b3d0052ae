package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnectBackoff = time.Second
	maxBackoff       = 10 * time.Second
)

// RabbitMQ holds one connection and one confirm-mode channel for the life of a run.
// Both are reopened on the next publish after the broker drops them.
type RabbitMQ struct {
	url  string
	dial func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitMQ connects to the broker, retrying until ctx is done. Callers bound ctx with a
// deadline; without one an unreachable broker blocks here until the process is signalled.
func NewRabbitMQ(ctx context.Context, url string) (*RabbitMQ, error) {
	return newRabbitMQ(ctx, url, amqp.Dial)
}

func newRabbitMQ(ctx context.Context, url string, dial func(url string) (*amqp.Connection, error)) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, dial: dial}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		_ = r.ch.Close()
	}
	r.ch = nil

	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// publish sends one message and waits for the broker to confirm it. A publish on a channel
// the broker has closed is retried once on a fresh channel.
func (r *RabbitMQ) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := r.openChannel(ctx)
		if err != nil {
			return err
		}

		confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, msg)
		if err != nil {
			lastErr = err
			if errors.Is(err, amqp.ErrClosed) || ch.IsClosed() {
				r.ch = nil
				continue
			}
			return err
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("waiting for publish confirm: %w", err)
		}
		if !acked {
			return fmt.Errorf("broker rejected message on %s/%s", exchange, routingKey)
		}
		return nil
	}

	return lastErr
}

// openChannel returns the current channel, declaring the topology and enabling confirms when a
// new one has to be opened. Callers hold mu.
func (r *RabbitMQ) openChannel(ctx context.Context) (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	ch, err := r.conn.Channel()
	if err != nil {
		// The connection itself is gone; the next call redials.
		_ = r.conn.Close()
		r.conn = nil
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	r.ch = ch
	return ch, nil
}

// ensureConnected dials with capped exponential backoff until it succeeds or ctx ends.
// Callers hold mu.
func (r *RabbitMQ) ensureConnected(ctx context.Context) error {
	if r.conn != nil && !r.conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		conn, err := r.dial(r.url)
		if err == nil {
			r.conn = conn
			r.ch = nil
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect canceled after %v: %w", err, ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, maxBackoff)
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", DeadLetterExchange, err)
	}

	if _, err := ch.QueueDeclare(ExhaustedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", ExhaustedQueue, err)
	}

	if err := ch.QueueBind(ExhaustedQueue, ExhaustedRoutingKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", ExhaustedQueue, err)
	}

	return nil
}
