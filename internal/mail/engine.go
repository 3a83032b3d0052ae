package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultSendTimeout = 60 * time.Second

// OutcomeStatus is the result class of a delivery.
type OutcomeStatus string

const (
	OutcomeDelivered OutcomeStatus = "DELIVERED"
	OutcomeFailed    OutcomeStatus = "FAILED"
)

func (s OutcomeStatus) String() string { return string(s) }

// Outcome is what the engine reports back for one message. There is no partial success.
type Outcome struct {
	Status    OutcomeStatus
	Reason    string
	Transient bool
	Err       error
	Duration  time.Duration
}

func (o Outcome) Delivered() bool { return o.Status == OutcomeDelivered }

func delivered(d time.Duration) Outcome {
	return Outcome{Status: OutcomeDelivered, Duration: d}
}

func failed(err error, d time.Duration) Outcome {
	return Outcome{
		Status:    OutcomeFailed,
		Reason:    err.Error(),
		Transient: IsTransient(err),
		Err:       err,
		Duration:  d,
	}
}

// Engine performs sends over one Transport for the lifetime of a run.
type Engine struct {
	transport   Transport
	limiter     ratelimit.RateLimiter
	sendTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewEngine(transport Transport, limiter ratelimit.RateLimiter, sendTimeout time.Duration, logger *zap.Logger) (*Engine, error) {
	if transport == nil {
		return nil, fmt.Errorf("mail transport is required")
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		transport:   transport,
		limiter:     limiter,
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// TransportName identifies the underlying transport, e.g. for metrics labels.
func (e *Engine) TransportName() string {
	return e.transport.Name()
}

// Deliver sends msg and classifies the result. A message that fails validation never reaches
// the transport and is reported as a permanent failure.
func (e *Engine) Deliver(ctx context.Context, msg Message) Outcome {
	start := e.now()

	if err := msg.Validate(); err != nil {
		return failed(&DeliveryError{Transport: e.transport.Name(), Message: "invalid message", Cause: err}, 0)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, e.transport.Name()); err != nil {
			if errors.Is(err, context.Canceled) {
				return failed(err, e.now().Sub(start))
			}
			return failed(&DeliveryError{
				Transport: e.transport.Name(),
				Message:   "rate limiter wait failed",
				Transient: true,
				Cause:     err,
			}, e.now().Sub(start))
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	if err := e.transport.Send(sendCtx, msg); err != nil {
		outcome := failed(err, e.now().Sub(start))
		e.logger.Debug("transport send failed",
			zap.String("transport", e.transport.Name()),
			zap.Bool("transient", outcome.Transient),
			zap.Error(err),
		)
		return outcome
	}

	return delivered(e.now().Sub(start))
}
