package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
)

// SESAPI is the subset of the SES client used by SESTransport.
type SESAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
	GetSendQuota(ctx context.Context, params *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

// SESTransport delivers raw MIME messages through Amazon SES.
type SESTransport struct {
	client SESAPI
	from   Sender
	now    func() time.Time
}

var _ Transport = (*SESTransport)(nil)

func NewSESTransport(client SESAPI, from Sender) (*SESTransport, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	if _, err := mail.ParseAddress(from.Address); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from.Address, err)
	}

	return &SESTransport{client: client, from: from, now: time.Now}, nil
}

func (t *SESTransport) Name() string { return "ses" }

// Verify checks credentials and that the 24h sending quota is not used up.
func (t *SESTransport) Verify(ctx context.Context) error {
	quota, err := t.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return t.classify(err)
	}
	if quota.Max24HourSend > 0 && quota.SentLast24Hours >= quota.Max24HourSend {
		return &DeliveryError{
			Transport: t.Name(),
			Message:   fmt.Sprintf("24h sending quota exhausted (%.0f/%.0f)", quota.SentLast24Hours, quota.Max24HourSend),
			Transient: true,
		}
	}
	return nil
}

func (t *SESTransport) Send(ctx context.Context, msg Message) error {
	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return &DeliveryError{Transport: t.Name(), Message: "malformed recipient", Cause: err}
	}

	raw, err := buildMIME(t.from, msg, t.now())
	if err != nil {
		return &DeliveryError{Transport: t.Name(), Message: "failed to build message", Cause: err}
	}

	_, err = t.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(t.from.header()),
		Destinations: []string{rcpt.Address},
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return t.classify(err)
	}
	return nil
}

func (t *SESTransport) Close() error { return nil }

func (t *SESTransport) classify(err error) error {
	var (
		rejected      *types.MessageRejected
		domainMissing *types.MailFromDomainNotVerifiedException
		configMissing *types.ConfigurationSetDoesNotExistException
	)
	if errors.As(err, &rejected) || errors.As(err, &domainMissing) || errors.As(err, &configMissing) {
		return &DeliveryError{Transport: t.Name(), Message: "rejected", Transient: false, Cause: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &DeliveryError{
			Transport: t.Name(),
			Message:   apiErr.ErrorCode(),
			Transient: apiErr.ErrorFault() == smithy.FaultServer || apiErr.ErrorCode() == "Throttling",
			Cause:     err,
		}
	}

	return &DeliveryError{
		Transport: t.Name(),
		Message:   "request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}
