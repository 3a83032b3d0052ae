package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

type RunRepository interface {
	Create(ctx context.Context, run *domain.DispatchRun) error
	Finish(ctx context.Context, run *domain.DispatchRun) error
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

func (r *GormRunRepo) Create(ctx context.Context, run *domain.DispatchRun) error {
	model := runModelFromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if run != nil {
		*run = *runModelToDomain(model)
	}
	return nil
}

func (r *GormRunRepo) Finish(ctx context.Context, run *domain.DispatchRun) error {
	if run == nil {
		return nil
	}
	if !run.Status.IsValid() {
		return fmt.Errorf("%w: unknown run status %q", domain.ErrValidation, run.Status)
	}

	result := r.db.WithContext(ctx).
		Model(&DispatchRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"total":       run.Total,
			"succeeded":   run.Succeeded,
			"failed":      run.Failed,
			"exhausted":   run.Exhausted,
			"skipped":     run.Skipped,
			"finished_at": run.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
