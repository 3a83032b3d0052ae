package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

const base64LineLength = 76

// Sender identifies the envelope and header sender of outgoing mail.
type Sender struct {
	Address string
	Name    string
}

func (s Sender) header() string {
	return (&mail.Address{Name: s.Name, Address: s.Address}).String()
}

func (s Sender) domain() string {
	if at := strings.LastIndex(s.Address, "@"); at >= 0 && at < len(s.Address)-1 {
		return s.Address[at+1:]
	}
	return "localhost"
}

// buildMIME renders msg as an RFC 5322 document. Messages without attachments are a single
// text/html part; otherwise a multipart/mixed body with base64 attachments.
func buildMIME(from Sender, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	headers := []struct{ key, value string }{
		{"From", from.header()},
		{"To", msg.To},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), from.domain())},
		{"MIME-Version", "1.0"},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.key, h.value)
	}

	if len(msg.Attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuotedPrintable(&buf, msg.HTMLBody); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create html part: %w", err)
	}
	if err := writeQuotedPrintable(htmlPart, msg.HTMLBody); err != nil {
		return nil, err
	}

	for _, attachment := range msg.Attachments {
		contentType := attachment.ContentType
		if contentType == "" {
			contentType = DefaultContentType
		}

		typeHeader := mime.FormatMediaType(contentType, map[string]string{"name": attachment.Filename})
		if typeHeader == "" {
			typeHeader = mime.FormatMediaType(DefaultContentType, map[string]string{"name": attachment.Filename})
		}

		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {typeHeader},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create part for %q: %w", attachment.Filename, err)
		}
		if err := writeBase64Lines(part, attachment.Content); err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", attachment.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	return buf.Bytes(), nil
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to encode html body: %w", err)
	}
	return qp.Close()
}

func writeBase64Lines(w io.Writer, content []byte) error {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > base64LineLength {
		if _, err := io.WriteString(w, encoded[:base64LineLength]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[base64LineLength:]
	}
	if encoded == "" {
		return nil
	}
	_, err := io.WriteString(w, encoded+"\r\n")
	return err
}
