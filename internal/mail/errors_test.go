package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient delivery error", err: &DeliveryError{Code: 421, Transient: true}, want: true},
		{name: "permanent delivery error", err: &DeliveryError{Code: 550}, want: false},
		{name: "wrapped permanent", err: fmt.Errorf("outer: %w", &DeliveryError{Code: 553}), want: false},
		{name: "net error", err: &net.OpError{Op: "dial", Err: timeoutErr{}}, want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDeliveryErrorMessage(t *testing.T) {
	t.Parallel()

	err := &DeliveryError{Transport: "smtp", Code: 550, Message: "send rejected", Cause: errors.New("mailbox unavailable")}
	want := "smtp delivery error: code=550: send rejected: mailbox unavailable"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	var nilErr *DeliveryError
	if got := nilErr.Error(); got != "<nil>" {
		t.Fatalf("nil Error() = %q, want <nil>", got)
	}
}
