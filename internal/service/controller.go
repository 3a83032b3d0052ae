package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ExitOK      = 0
	ExitFailure = 1

	defaultPreflightTimeout = 30 * time.Second
	metricsJobName          = "notification-dispatcher"
)

// Verifier checks that an outbound dependency is reachable before any work starts.
type Verifier interface {
	Verify(ctx context.Context) error
}

// RunLocker serialises runs across processes.
type RunLocker interface {
	Acquire(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
}

// QueueRunner is one pass over the eligible queue.
type QueueRunner interface {
	RunOnce(ctx context.Context, runID string) (RunSummary, error)
}

// RunController owns the lifecycle of one dispatcher invocation and maps it to an exit code.
type RunController struct {
	transport Verifier
	store     repository.NotificationRepository
	runs      repository.RunRepository
	runner    QueueRunner
	lock      RunLocker
	logger    *zap.Logger
	metrics   *observability.Metrics

	pushgatewayURL   string
	preflightTimeout time.Duration

	now   func() time.Time
	newID func() string
}

func NewRunController(
	transport Verifier,
	store repository.NotificationRepository,
	runs repository.RunRepository,
	runner QueueRunner,
	logger *zap.Logger,
) (*RunController, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if store == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("queue runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RunController{
		transport:        transport,
		store:            store,
		runs:             runs,
		runner:           runner,
		logger:           logger,
		preflightTimeout: defaultPreflightTimeout,
		now:              time.Now,
		newID:            uuid.NewString,
	}, nil
}

// SetRunLock makes the controller skip the run when another process holds the lock.
func (c *RunController) SetRunLock(lock RunLocker) {
	if c == nil {
		return
	}
	c.lock = lock
}

// SetMetrics records run metrics and, when pushgatewayURL is set, pushes them at the end.
func (c *RunController) SetMetrics(metrics *observability.Metrics, pushgatewayURL string) {
	if c == nil {
		return
	}
	c.metrics = metrics
	c.pushgatewayURL = pushgatewayURL
}

// Run executes lock, preflight and exactly one queue pass. It returns ExitOK for a completed
// run regardless of per-item outcomes, and ExitFailure for systemic problems.
func (c *RunController) Run(ctx context.Context) int {
	runID := c.newID()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithContextLogger(c.logger, ctx)

	if c.lock != nil {
		if err := c.lock.Acquire(ctx, runID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				logger.Info("another dispatch run is in progress, nothing to do")
				return ExitOK
			}
			logger.Error("failed to acquire run lock", zap.Error(err))
			return ExitFailure
		}
		defer c.releaseLock(ctx, logger, runID)
	}

	if err := c.preflight(ctx); err != nil {
		logger.Error("preflight failed, aborting run", zap.Error(err))
		return ExitFailure
	}

	startedAt := c.now().UTC()
	run := &domain.DispatchRun{ID: runID, Status: domain.RunStatusRunning, StartedAt: startedAt}
	if err := c.runs.Create(ctx, run); err != nil {
		logger.Error("failed to record run start", zap.Error(err))
		return ExitFailure
	}

	summary, runErr := c.runner.RunOnce(ctx, runID)

	finishedAt := c.now().UTC()
	run.Status = domain.RunStatusCompleted
	if runErr != nil {
		run.Status = domain.RunStatusAborted
	}
	run.Total = summary.Total
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed
	run.Exhausted = summary.Exhausted
	run.Skipped = summary.Skipped
	run.FinishedAt = &finishedAt

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := c.runs.Finish(finishCtx, run); err != nil {
		logger.Error("failed to record run finish", zap.Error(err))
	}
	c.publishMetrics(finishCtx, logger, summary, finishedAt.Sub(startedAt), finishedAt)

	fields := []zap.Field{
		zap.String("status", run.Status.String()),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("exhausted", summary.Exhausted),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", finishedAt.Sub(startedAt)),
	}
	if runErr != nil {
		logger.Error("dispatch run aborted", append(fields, zap.Error(runErr))...)
		return ExitFailure
	}

	logger.Info("dispatch run completed", fields...)
	return ExitOK
}

// preflight verifies the transport and the queue store concurrently. Both must pass.
func (c *RunController) preflight(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.preflightTimeout)
	defer cancel()

	g, groupCtx := errgroup.WithContext(checkCtx)
	g.Go(func() error {
		if err := c.transport.Verify(groupCtx); err != nil {
			return fmt.Errorf("mail transport verify: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.store.Ping(groupCtx); err != nil {
			return fmt.Errorf("queue store ping: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (c *RunController) releaseLock(ctx context.Context, logger *zap.Logger, runID string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := c.lock.Release(releaseCtx, runID); err != nil {
		logger.Warn("failed to release run lock", zap.Error(err))
	}
}

func (c *RunController) publishMetrics(ctx context.Context, logger *zap.Logger, summary RunSummary, duration time.Duration, finishedAt time.Time) {
	if c.metrics == nil {
		return
	}

	c.metrics.SetRunSummary(observability.RunCounts{
		Total:     summary.Total,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Exhausted: summary.Exhausted,
		Skipped:   summary.Skipped,
	}, duration, finishedAt)

	if c.pushgatewayURL == "" {
		return
	}
	if err := c.metrics.Push(ctx, c.pushgatewayURL, metricsJobName); err != nil {
		logger.Warn("failed to push metrics", zap.Error(err))
	}
}
