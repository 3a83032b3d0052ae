package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"gorm.io/gorm"
)

func createDispatchRunsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_dispatch_runs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.DispatchRunModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchRunModel{})
		},
	}
}
