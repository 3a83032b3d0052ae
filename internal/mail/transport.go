package mail

import "context"

// Transport is the outbound mail port. Implementations keep one session for the whole run.
type Transport interface {
	Name() string
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
	Close() error
}
