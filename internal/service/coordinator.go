package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/mail"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/report"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPacingInterval = time.Second
	defaultClaimTTL       = 15 * time.Minute
	persistTimeout        = 10 * time.Second
)

// ErrQueueUnavailable wraps failures to read the eligible set. The run cannot proceed.
var ErrQueueUnavailable = errors.New("queue store unavailable")

// Deliverer sends one composed message and reports the classified outcome.
type Deliverer interface {
	Deliver(ctx context.Context, msg mail.Message) mail.Outcome
	TransportName() string
}

// AttachmentAssembler resolves attachment references, omitting the ones that fail.
type AttachmentAssembler interface {
	Assemble(ctx context.Context, refs []domain.AttachmentRef) []mail.Attachment
}

// RunSummary holds the item counts of one pass over the queue. Exhausted is a subset of Failed.
type RunSummary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Exhausted int
	Skipped   int
}

type itemResult int

const (
	itemSkipped itemResult = iota
	itemDelivered
	itemFailed
	itemExhausted
)

type CoordinatorConfig struct {
	MaxAttempts    int
	PacingInterval time.Duration
	ClaimTTL       time.Duration
}

// QueueCoordinator drains the eligible notifications once, strictly one item at a time.
type QueueCoordinator struct {
	notifications repository.NotificationRepository
	reportConfigs repository.ReportConfigRepository
	attempts      repository.AttemptRepository
	injector      report.Injector
	assembler     AttachmentAssembler
	deliverer     Deliverer
	deadLetters   queue.DeadLetterPublisher
	logger        *zap.Logger
	metrics       *observability.Metrics

	maxAttempts int
	pacing      time.Duration
	claimTTL    time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

func NewQueueCoordinator(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	assembler AttachmentAssembler,
	deliverer Deliverer,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) (*QueueCoordinator, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if assembler == nil {
		return nil, fmt.Errorf("attachment assembler is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if cfg.PacingInterval < 0 {
		cfg.PacingInterval = defaultPacingInterval
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueCoordinator{
		notifications: notifications,
		attempts:      attempts,
		assembler:     assembler,
		deliverer:     deliverer,
		logger:        logger,
		maxAttempts:   cfg.MaxAttempts,
		pacing:        cfg.PacingInterval,
		claimTTL:      cfg.ClaimTTL,
		now:           time.Now,
		sleep:         sleepWithContext,
		newID:         uuid.NewString,
	}, nil
}

// SetReportInjection enables report injection for subjects that have an active config.
func (c *QueueCoordinator) SetReportInjection(configs repository.ReportConfigRepository, injector report.Injector) {
	if c == nil {
		return
	}
	c.reportConfigs = configs
	c.injector = injector
}

func (c *QueueCoordinator) SetDeadLetterPublisher(publisher queue.DeadLetterPublisher) {
	if c == nil {
		return
	}
	c.deadLetters = publisher
}

func (c *QueueCoordinator) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// RunOnce processes every currently eligible notification under runID. Individual item
// failures never fail the run; only a list failure or ctx cancellation returns an error,
// the latter together with the counts gathered so far.
func (c *QueueCoordinator) RunOnce(ctx context.Context, runID string) (RunSummary, error) {
	if runID == "" {
		runID = c.newID()
	}
	summary := RunSummary{RunID: runID}
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithContextLogger(c.logger, ctx)

	eligible, err := c.notifications.ListEligible(ctx, c.maxAttempts)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	summary.Total = len(eligible)
	logger.Info("eligible notifications loaded", zap.Int("count", len(eligible)))

	for i, notification := range eligible {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		switch c.processOne(ctx, runID, notification) {
		case itemDelivered:
			summary.Succeeded++
		case itemFailed:
			summary.Failed++
		case itemExhausted:
			summary.Failed++
			summary.Exhausted++
		default:
			summary.Skipped++
		}

		// Pacing spaces consecutive sends; a run-once job has nothing to wait for after its last item.
		if i < len(eligible)-1 && c.pacing > 0 {
			if err := c.sleep(ctx, c.pacing); err != nil {
				return summary, err
			}
		}
	}

	return summary, nil
}

func (c *QueueCoordinator) processOne(ctx context.Context, runID string, notification domain.Notification) itemResult {
	ctx = observability.WithNotificationID(ctx, notification.ID)
	logger := observability.WithContextLogger(c.logger, ctx)

	now := c.now().UTC()
	claimed, err := c.notifications.Claim(ctx, notification.ID, runID, c.maxAttempts, now, now.Add(-c.claimTTL))
	if err != nil {
		logger.Error("failed to claim notification", zap.Error(err))
		c.metrics.IncSkipped()
		return itemSkipped
	}
	if !claimed {
		logger.Info("notification claimed by another run, skipping")
		c.metrics.IncSkipped()
		return itemSkipped
	}

	transport := c.deliverer.TransportName()

	var (
		msg     mail.Message
		outcome mail.Outcome
	)
	if err := notification.Validate(); err != nil {
		// A malformed row can never be delivered; skip report and attachment fetches.
		outcome = mail.Outcome{Status: mail.OutcomeFailed, Reason: err.Error(), Err: err}
	} else {
		msg = mail.Message{
			To:          notification.Recipient,
			Subject:     notification.Subject,
			HTMLBody:    c.composeBody(ctx, notification),
			Attachments: c.assembler.Assemble(ctx, notification.Attachments),
		}
		if dropped := len(notification.Attachments) - len(msg.Attachments); dropped > 0 {
			logger.Warn("sending with partial attachments",
				zap.Int("requested", len(notification.Attachments)),
				zap.Int("omitted", dropped),
			)
		}

		outcome = c.deliverer.Deliver(ctx, msg)
		c.metrics.ObserveSendDuration(transport, outcome.Duration)
	}

	// The attempt happened; its result is written even if the run is being canceled.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	attemptNumber := notification.Attempts + 1
	finishedAt := c.now().UTC()

	if outcome.Delivered() {
		if err := c.notifications.MarkDelivered(persistCtx, notification.ID, runID, finishedAt); err != nil {
			logger.Error("failed to persist delivered state", zap.Error(err))
		}
		c.recordAttempt(persistCtx, logger, runID, notification.ID, attemptNumber, outcome, finishedAt)
		c.metrics.IncDelivered(transport)
		logger.Info("notification delivered",
			zap.Int("attempt", attemptNumber),
			zap.Int("attachments", len(msg.Attachments)),
			zap.Duration("duration", outcome.Duration),
		)
		return itemDelivered
	}

	if ctx.Err() != nil {
		// Interrupted sends are retried next run rather than failed permanently.
		outcome.Transient = true
	}
	exhausted := !outcome.Transient || attemptNumber >= c.maxAttempts

	update := repository.FailureUpdate{Reason: outcome.Reason, Exhausted: exhausted, At: finishedAt}
	if err := c.notifications.MarkFailed(persistCtx, notification.ID, runID, update); err != nil {
		logger.Error("failed to persist failed state", zap.Error(err))
	}
	c.recordAttempt(persistCtx, logger, runID, notification.ID, attemptNumber, outcome, finishedAt)
	c.metrics.IncFailed(transport, outcome.Transient)

	after := notification
	after.Attempts = attemptNumber
	after.Exhausted = exhausted
	logger.Warn("notification delivery failed",
		zap.Int("attempt", attemptNumber),
		zap.Bool("transient", outcome.Transient),
		zap.String("state", after.State(c.maxAttempts).String()),
		zap.String("reason", outcome.Reason),
	)

	if !exhausted {
		return itemFailed
	}

	c.metrics.IncExhausted(transport)
	c.publishExhausted(persistCtx, logger, queue.ExhaustedMessage{
		NotificationID: notification.ID,
		RunID:          runID,
		Recipient:      notification.Recipient,
		Subject:        notification.Subject,
		Attempts:       attemptNumber,
		LastError:      outcome.Reason,
		Permanent:      !outcome.Transient,
		ExhaustedAt:    finishedAt,
	})
	return itemExhausted
}

// composeBody appends the configured report, if any. Every failure leaves the body unchanged.
func (c *QueueCoordinator) composeBody(ctx context.Context, notification domain.Notification) string {
	if c.reportConfigs == nil || c.injector == nil {
		return notification.Body
	}
	logger := observability.WithContextLogger(c.logger, ctx)

	cfg, err := c.reportConfigs.GetActiveBySubject(ctx, notification.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return notification.Body
	}
	if err != nil {
		logger.Warn("report config lookup failed, sending without report", zap.Error(err))
		return notification.Body
	}

	html, err := c.injector.Inject(ctx, report.Request{
		ReportType:   cfg.ReportType,
		LookbackDays: cfg.Lookback(),
		ScopeID:      cfg.ScopeID,
	})
	if err != nil {
		c.metrics.IncReportInjection(false)
		logger.Warn("report injection failed, sending without report",
			zap.String("reportType", cfg.ReportType),
			zap.Error(err),
		)
		return notification.Body
	}

	c.metrics.IncReportInjection(true)
	return report.Append(notification.Body, html)
}

func (c *QueueCoordinator) recordAttempt(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	notificationID string,
	attemptNumber int,
	outcome mail.Outcome,
	at time.Time,
) {
	if c.attempts == nil {
		return
	}

	attempt := &domain.NotificationAttempt{
		ID:             c.newID(),
		NotificationID: notificationID,
		RunID:          runID,
		AttemptNumber:  attemptNumber,
		Outcome:        domain.AttemptDelivered,
		CreatedAt:      at,
	}
	if !outcome.Delivered() {
		reason := outcome.Reason
		attempt.Outcome = domain.AttemptFailed
		attempt.Transient = outcome.Transient
		attempt.Error = &reason
	}

	if err := c.attempts.Create(ctx, attempt); err != nil {
		logger.Warn("failed to record delivery attempt", zap.Error(err))
	}
}

func (c *QueueCoordinator) publishExhausted(ctx context.Context, logger *zap.Logger, msg queue.ExhaustedMessage) {
	if c.deadLetters == nil {
		return
	}

	if err := c.deadLetters.PublishExhausted(ctx, msg); err != nil {
		c.metrics.IncDeadLetter(false)
		logger.Error("failed to publish dead letter", zap.Error(err))
		return
	}
	c.metrics.IncDeadLetter(true)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
