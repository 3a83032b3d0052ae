package mail

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// DefaultContentType is used for attachments whose type could not be determined.
const DefaultContentType = "application/octet-stream"

// Attachment is a fully resolved file ready to be embedded in a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a composed e-mail handed to a Transport.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Validate rejects messages no transport could ever accept.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: malformed recipient %q: %v", domain.ErrValidation, m.To, err)
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("%w: subject must be a single line", domain.ErrValidation)
	}
	return nil
}
