package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultSMTPDialTimeout = 15 * time.Second

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ImplicitTLS bool
	DialTimeout time.Duration
	From        Sender
}

// SMTPTransport delivers over a single SMTP session that is reused between messages and
// reopened after a connection-level failure.
type SMTPTransport struct {
	cfg SMTPConfig

	mu     sync.Mutex
	conn   net.Conn
	client *smtp.Client

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
}

var _ Transport = (*SMTPTransport)(nil)

func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	if _, err := mail.ParseAddress(cfg.From.Address); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From.Address, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultSMTPDialTimeout
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	return &SMTPTransport{
		cfg:  cfg,
		dial: dialer.DialContext,
		now:  time.Now,
	}, nil
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Verify opens the session if needed and checks it with NOOP.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureSession(ctx); err != nil {
		return err
	}

	t.applyDeadline(ctx)
	if err := t.client.Noop(); err != nil {
		t.dropSession()
		return t.classify("noop", err)
	}
	return nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return &DeliveryError{Transport: t.Name(), Message: "malformed recipient", Cause: err}
	}

	raw, err := buildMIME(t.cfg.From, msg, t.now())
	if err != nil {
		return &DeliveryError{Transport: t.Name(), Message: "failed to build message", Cause: err}
	}

	if err := t.ensureSession(ctx); err != nil {
		return err
	}
	t.applyDeadline(ctx)

	if err := t.transmit(rcpt.Address, raw); err != nil {
		t.resetAfterFailure(err)
		return t.classify("send", err)
	}

	// RSET keeps the session clean for the next message.
	if err := t.client.Reset(); err != nil {
		t.dropSession()
	}
	return nil
}

func (t *SMTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}

	err := t.client.Quit()
	t.dropSession()
	return err
}

func (t *SMTPTransport) transmit(rcpt string, raw []byte) error {
	if err := t.client.Mail(t.cfg.From.Address); err != nil {
		return err
	}
	if err := t.client.Rcpt(rcpt); err != nil {
		return err
	}

	w, err := t.client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (t *SMTPTransport) ensureSession(ctx context.Context) error {
	if t.client != nil {
		return nil
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	conn, err := t.dial(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{Transport: t.Name(), Message: "failed to connect " + addr, Transient: true, Cause: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
	if t.cfg.ImplicitTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return t.classify("greeting", err)
	}

	if !t.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return t.classify("starttls", err)
			}
		}
	}

	if t.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			_ = client.Close()
			return &DeliveryError{Transport: t.Name(), Message: "server does not support AUTH"}
		}
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return t.classify("auth", err)
		}
	}

	t.conn = conn
	t.client = client
	return nil
}

func (t *SMTPTransport) applyDeadline(ctx context.Context) {
	if t.conn == nil {
		return
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = t.conn.SetDeadline(deadline)
}

// resetAfterFailure keeps the session after a protocol-level rejection and drops it otherwise.
func (t *SMTPTransport) resetAfterFailure(err error) {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && t.client != nil {
		if resetErr := t.client.Reset(); resetErr == nil {
			return
		}
	}
	t.dropSession()
}

func (t *SMTPTransport) dropSession() {
	if t.client != nil {
		_ = t.client.Close()
	} else if t.conn != nil {
		_ = t.conn.Close()
	}
	t.client = nil
	t.conn = nil
}

// classify maps SMTP replies onto DeliveryError: 4xx is transient, 5xx permanent,
// and anything below the protocol (I/O, TLS, timeouts) transient.
func (t *SMTPTransport) classify(stage string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &DeliveryError{
			Transport: t.Name(),
			Code:      protoErr.Code,
			Message:   stage + " rejected",
			Transient: protoErr.Code >= 400 && protoErr.Code < 500,
			Cause:     err,
		}
	}

	return &DeliveryError{
		Transport: t.Name(),
		Message:   stage + " failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}
