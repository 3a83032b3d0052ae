package repository

import (
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID        string     `gorm:"type:uuid;primaryKey"`
	Recipient string     `gorm:"type:varchar(320);not null"`
	Subject   string     `gorm:"type:varchar(998);not null"`
	Body      string     `gorm:"type:text;not null"`
	Sent      bool       `gorm:"not null;default:false"`
	Attempts  int        `gorm:"not null;default:0"`
	Exhausted bool       `gorm:"not null;default:false"`
	ClaimedBy *string    `gorm:"type:varchar(36)"`
	ClaimedAt *time.Time `gorm:"type:timestamptz"`
	LastError *string    `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Attachments []NotificationAttachmentModel `gorm:"foreignKey:NotificationID"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// NotificationAttachmentModel is one ordered attachment reference of a notification.
type NotificationAttachmentModel struct {
	ID             uint   `gorm:"primaryKey"`
	NotificationID string `gorm:"type:uuid;not null"`
	Position       int    `gorm:"not null"`
	Locator        string `gorm:"type:text;not null"`
	Filename       string `gorm:"type:varchar(255);not null"`
}

func (NotificationAttachmentModel) TableName() string {
	return "notification_attachments"
}

// ReportInjectionConfigModel is the persistence model for report_injection_configs.
type ReportInjectionConfigModel struct {
	ID           uint    `gorm:"primaryKey"`
	Subject      string  `gorm:"type:varchar(998);not null;uniqueIndex"`
	ReportType   string  `gorm:"type:varchar(100);not null"`
	LookbackDays *int    `gorm:"type:int"`
	ScopeID      *string `gorm:"type:varchar(100)"`
	Active       bool    `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ReportInjectionConfigModel) TableName() string {
	return "report_injection_configs"
}

// NotificationAttemptModel is the persistence model for notification_attempts.
type NotificationAttemptModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	NotificationID string                `gorm:"type:uuid;not null"`
	RunID          string                `gorm:"type:uuid;not null"`
	AttemptNumber  int                   `gorm:"not null"`
	Outcome        domain.AttemptOutcome `gorm:"type:varchar(20);not null"`
	Transient      bool                  `gorm:"not null;default:false"`
	Error          *string               `gorm:"type:text"`
	CreatedAt      time.Time
}

func (NotificationAttemptModel) TableName() string {
	return "notification_attempts"
}

// DispatchRunModel is the persistence model for dispatch_runs.
type DispatchRunModel struct {
	ID         string           `gorm:"type:uuid;primaryKey"`
	Status     domain.RunStatus `gorm:"type:varchar(20);not null"`
	Total      int              `gorm:"not null;default:0"`
	Succeeded  int              `gorm:"not null;default:0"`
	Failed     int              `gorm:"not null;default:0"`
	Exhausted  int              `gorm:"not null;default:0"`
	Skipped    int              `gorm:"not null;default:0"`
	StartedAt  time.Time        `gorm:"type:timestamptz;not null"`
	FinishedAt *time.Time       `gorm:"type:timestamptz"`
}

func (DispatchRunModel) TableName() string {
	return "dispatch_runs"
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	attachments := make([]domain.AttachmentRef, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, domain.AttachmentRef{
			Locator:  a.Locator,
			Filename: a.Filename,
		})
	}

	return &domain.Notification{
		ID:          m.ID,
		Recipient:   m.Recipient,
		Subject:     m.Subject,
		Body:        m.Body,
		Attachments: attachments,
		Sent:        m.Sent,
		Attempts:    m.Attempts,
		Exhausted:   m.Exhausted,
		ClaimedBy:   m.ClaimedBy,
		ClaimedAt:   m.ClaimedAt,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func reportConfigModelToDomain(m *ReportInjectionConfigModel) *domain.ReportInjectionConfig {
	if m == nil {
		return nil
	}

	return &domain.ReportInjectionConfig{
		Subject:      m.Subject,
		ReportType:   m.ReportType,
		LookbackDays: m.LookbackDays,
		ScopeID:      m.ScopeID,
		Active:       m.Active,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *NotificationAttemptModel {
	if a == nil {
		return nil
	}

	return &NotificationAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		RunID:          a.RunID,
		AttemptNumber:  a.AttemptNumber,
		Outcome:        a.Outcome,
		Transient:      a.Transient,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *NotificationAttemptModel) *domain.NotificationAttempt {
	if m == nil {
		return nil
	}

	return &domain.NotificationAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		RunID:          m.RunID,
		AttemptNumber:  m.AttemptNumber,
		Outcome:        m.Outcome,
		Transient:      m.Transient,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}

func runModelFromDomain(r *domain.DispatchRun) *DispatchRunModel {
	if r == nil {
		return nil
	}

	return &DispatchRunModel{
		ID:         r.ID,
		Status:     r.Status,
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Exhausted:  r.Exhausted,
		Skipped:    r.Skipped,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func runModelToDomain(m *DispatchRunModel) *domain.DispatchRun {
	if m == nil {
		return nil
	}

	return &domain.DispatchRun{
		ID:         m.ID,
		Status:     m.Status,
		Total:      m.Total,
		Succeeded:  m.Succeeded,
		Failed:     m.Failed,
		Exhausted:  m.Exhausted,
		Skipped:    m.Skipped,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}
