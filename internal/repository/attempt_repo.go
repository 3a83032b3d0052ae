package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository appends the per-attempt audit trail.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.NotificationAttempt) error
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

// Create inserts one audit row. Rows are never updated; a retried attempt gets a new row.
func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.NotificationAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", domain.ErrValidation)
	}
	if !a.Outcome.IsValid() {
		return fmt.Errorf("%w: unknown attempt outcome %q", domain.ErrValidation, a.Outcome)
	}

	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert attempt for notification %s: %w", a.NotificationID, err)
	}
	*a = *attemptModelToDomain(model)
	return nil
}
