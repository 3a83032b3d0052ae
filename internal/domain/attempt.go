package domain

import "time"

// AttemptOutcome is the recorded result of one delivery attempt.
type AttemptOutcome string

const (
	AttemptDelivered AttemptOutcome = "DELIVERED"
	AttemptFailed    AttemptOutcome = "FAILED"
)

func (o AttemptOutcome) String() string { return string(o) }

func (o AttemptOutcome) IsValid() bool {
	return o == AttemptDelivered || o == AttemptFailed
}

// NotificationAttempt records a single delivery attempt for a notification.
type NotificationAttempt struct {
	ID             string
	NotificationID string
	RunID          string
	AttemptNumber  int
	Outcome        AttemptOutcome
	Transient      bool
	Error          *string
	CreatedAt      time.Time
}
