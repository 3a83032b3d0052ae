package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// DefaultMaxAttempts is the attempt ceiling after which a notification is no longer selected.
const DefaultMaxAttempts = 3

// AttachmentRef points at a fetchable blob and the filename it is delivered under.
type AttachmentRef struct {
	Locator  string
	Filename string
}

// Notification is a single outbound e-mail waiting in the queue store.
type Notification struct {
	ID          string
	Recipient   string
	Subject     string
	Body        string
	Attachments []AttachmentRef
	Sent        bool
	Attempts    int
	Exhausted   bool
	ClaimedBy   *string
	ClaimedAt   *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsEligible reports whether the notification may be picked up by a run.
func (n *Notification) IsEligible(maxAttempts int) bool {
	if n == nil {
		return false
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return !n.Sent && !n.Exhausted && n.Attempts < maxAttempts
}

// State returns the lifecycle state derived from the persisted flags.
func (n *Notification) State(maxAttempts int) State {
	switch {
	case n.Sent:
		return StateSent
	case n.IsEligible(maxAttempts):
		return StatePending
	default:
		return StateExhausted
	}
}

// Validate rejects rows that no transport could ever deliver. Anything that only degrades the
// message, such as an unresolvable attachment or an empty subject, is left to the send path.
func (n *Notification) Validate() error {
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(n.Recipient); err != nil {
		return fmt.Errorf("%w: invalid recipient %q", ErrValidation, n.Recipient)
	}
	if strings.ContainsAny(n.Subject, "\r\n") {
		return fmt.Errorf("%w: subject must be a single line", ErrValidation)
	}
	return nil
}

// State is the derived lifecycle state of a notification.
type State string

const (
	StatePending   State = "PENDING"
	StateSent      State = "SENT"
	StateExhausted State = "EXHAUSTED"
)

func (s State) String() string { return string(s) }
