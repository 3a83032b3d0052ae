package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

// FailureUpdate is the state written after a delivery attempt that did not succeed.
type FailureUpdate struct {
	Reason    string
	Exhausted bool
	At        time.Time
}

// NotificationRepository is the queue store seam. Only the queue coordinator writes through it.
type NotificationRepository interface {
	Ping(ctx context.Context) error
	ListEligible(ctx context.Context, maxAttempts int) ([]domain.Notification, error)
	Claim(ctx context.Context, id string, runID string, maxAttempts int, now time.Time, staleBefore time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id string, runID string, at time.Time) error
	MarkFailed(ctx context.Context, id string, runID string, update FailureUpdate) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// ListEligible returns every unsent, non-exhausted notification under the attempt ceiling,
// oldest first. The result is unbounded.
func (r *GormNotificationRepo) ListEligible(ctx context.Context, maxAttempts int) ([]domain.Notification, error) {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("sent = ? AND exhausted = ? AND attempts < ?", false, false, maxAttempts).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

// Claim marks the notification as owned by runID. It succeeds only while the row is still
// eligible and unclaimed, or its claim is older than staleBefore.
func (r *GormNotificationRepo) Claim(
	ctx context.Context,
	id string,
	runID string,
	maxAttempts int,
	now time.Time,
	staleBefore time.Time,
) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND sent = ? AND exhausted = ? AND attempts < ?", id, false, false, maxAttempts).
		Where("claimed_at IS NULL OR claimed_at < ?", staleBefore).
		Updates(map[string]any{
			"claimed_by": runID,
			"claimed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *GormNotificationRepo) MarkDelivered(ctx context.Context, id string, runID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND sent = ? AND claimed_by = ?", id, false, runID).
		Updates(map[string]any{
			"sent":       true,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": nil,
			"claimed_by": nil,
			"claimed_at": nil,
			"updated_at": at,
		})
	return checkOwnedUpdate(r.db.WithContext(ctx), result, id)
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, runID string, update FailureUpdate) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND sent = ? AND claimed_by = ?", id, false, runID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"exhausted":  update.Exhausted,
			"last_error": update.Reason,
			"claimed_by": nil,
			"claimed_at": nil,
			"updated_at": update.At,
		})
	return checkOwnedUpdate(r.db.WithContext(ctx), result, id)
}

// checkOwnedUpdate distinguishes a missing row from one whose claim was taken over.
func checkOwnedUpdate(db *gorm.DB, result *gorm.DB, id string) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&NotificationModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: notification %s is no longer claimed by this run", domain.ErrConflict, id)
}

// ReportConfigRepository reads the out-of-band report injection settings.
type ReportConfigRepository interface {
	GetActiveBySubject(ctx context.Context, subject string) (*domain.ReportInjectionConfig, error)
}

type GormReportConfigRepo struct {
	db *gorm.DB
}

func NewGormReportConfigRepo(db *gorm.DB) *GormReportConfigRepo {
	return &GormReportConfigRepo{db: db}
}

func (r *GormReportConfigRepo) GetActiveBySubject(ctx context.Context, subject string) (*domain.ReportInjectionConfig, error) {
	var model ReportInjectionConfigModel
	err := r.db.WithContext(ctx).
		Where("subject = ? AND active = ?", subject, true).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reportConfigModelToDomain(&model), nil
}
