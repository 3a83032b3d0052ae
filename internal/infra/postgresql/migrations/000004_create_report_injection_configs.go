package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"gorm.io/gorm"
)

func createReportInjectionConfigsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_report_injection_configs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReportInjectionConfigModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_report_configs_active_subject ON report_injection_configs (subject) WHERE active = true`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReportInjectionConfigModel{})
		},
	}
}
