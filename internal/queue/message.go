package queue

import (
	"fmt"
	"strings"
	"time"
)

// ExhaustedMessage is the dead-letter payload for a notification that will never be retried.
type ExhaustedMessage struct {
	NotificationID string    `json:"notificationId"`
	RunID          string    `json:"runId"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	Permanent      bool      `json:"permanent"`
	ExhaustedAt    time.Time `json:"exhaustedAt"`
}

func (m ExhaustedMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("runId is required")
	}
	if m.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", m.Attempts)
	}
	if m.ExhaustedAt.IsZero() {
		return fmt.Errorf("exhaustedAt is required")
	}
	return nil
}
