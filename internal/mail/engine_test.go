package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
)

type fakeTransport struct {
	name     string
	sendFn   func(ctx context.Context, msg Message) error
	verifyFn func(ctx context.Context) error
	sends    []Message
}

func (f *fakeTransport) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeTransport) Verify(ctx context.Context) error {
	if f.verifyFn == nil {
		return nil
	}
	return f.verifyFn(ctx)
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.sends = append(f.sends, msg)
	if f.sendFn == nil {
		return nil
	}
	return f.sendFn(ctx, msg)
}

func (f *fakeTransport) Close() error { return nil }

type fakeLimiter struct {
	waitFn func(ctx context.Context, transport string) error
	keys   []string
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeLimiter) Wait(ctx context.Context, transport string) error {
	f.keys = append(f.keys, transport)
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, transport)
}

func validMessage() Message {
	return Message{To: "ops@example.com", Subject: "Digest", HTMLBody: "<p>hi</p>"}
}

func TestEngineDeliverSuccess(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{name: "smtp"}
	limiter := &fakeLimiter{}
	engine, err := NewEngine(transport, limiter, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	outcome := engine.Deliver(context.Background(), validMessage())
	if !outcome.Delivered() {
		t.Fatalf("expected delivered outcome, got %+v", outcome)
	}
	if len(transport.sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(transport.sends))
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "smtp" {
		t.Fatalf("expected limiter keyed by transport name, got %v", limiter.keys)
	}
}

func TestEngineDeliverInvalidMessageSkipsTransport(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	engine, err := NewEngine(transport, nil, 0, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	msg := validMessage()
	msg.To = "not-an-address"

	outcome := engine.Deliver(context.Background(), msg)
	if outcome.Status != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Status)
	}
	if outcome.Transient {
		t.Fatal("expected permanent failure for malformed recipient")
	}
	if !errors.Is(outcome.Err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", outcome.Err)
	}
	if len(transport.sends) != 0 {
		t.Fatalf("expected no sends, got %d", len(transport.sends))
	}
}

func TestEngineDeliverClassifiesTransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		sendErr       error
		wantTransient bool
	}{
		{name: "mailbox busy", sendErr: &DeliveryError{Code: 451, Transient: true}, wantTransient: true},
		{name: "mailbox unknown", sendErr: &DeliveryError{Code: 550}, wantTransient: false},
		{name: "unclassified", sendErr: errors.New("boom"), wantTransient: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, err := NewEngine(&fakeTransport{
				sendFn: func(context.Context, Message) error { return tt.sendErr },
			}, nil, time.Second, zap.NewNop())
			if err != nil {
				t.Fatalf("NewEngine() error = %v", err)
			}

			outcome := engine.Deliver(context.Background(), validMessage())
			if outcome.Status != OutcomeFailed {
				t.Fatalf("expected failed outcome, got %s", outcome.Status)
			}
			if outcome.Transient != tt.wantTransient {
				t.Fatalf("Transient = %v, want %v", outcome.Transient, tt.wantTransient)
			}
			if outcome.Reason == "" {
				t.Fatal("expected failure reason")
			}
		})
	}
}

func TestEngineDeliverAppliesSendTimeout(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeTransport{
		sendFn: func(ctx context.Context, _ Message) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, nil, 10*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	outcome := engine.Deliver(context.Background(), validMessage())
	if outcome.Status != OutcomeFailed || !outcome.Transient {
		t.Fatalf("expected transient timeout failure, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", outcome.Err)
	}
}

func TestEngineDeliverLimiterFailure(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	engine, err := NewEngine(transport, &fakeLimiter{
		waitFn: func(context.Context, string) error { return errors.New("redis down") },
	}, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	outcome := engine.Deliver(context.Background(), validMessage())
	if outcome.Status != OutcomeFailed || !outcome.Transient {
		t.Fatalf("expected transient failure, got %+v", outcome)
	}
	if len(transport.sends) != 0 {
		t.Fatalf("expected no sends when limiter fails, got %d", len(transport.sends))
	}
}

func TestNewEngineRequiresTransport(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(nil, nil, time.Second, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil transport")
	}
}
