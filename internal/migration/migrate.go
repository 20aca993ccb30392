package migration

import (
	"github.com/stashd/stashd-backend/internal/domain"

	"gorm.io/gorm"
)

// Run executes AutoMigrate for all owned tables.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Bookmark{},
		&domain.Note{},
		&domain.Prompt{},
		&domain.UserTier{},
		&domain.HistoryRecord{},
	)
}
