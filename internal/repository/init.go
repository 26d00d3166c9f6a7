package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/models"
)

type Repositories struct {
	AccountRepository      interfaces.AccountRepository
	SyncProgressRepository interfaces.SyncProgressRepository
	MessageRepository      interfaces.MessageRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:      NewAccountRepository(db),
		SyncProgressRepository: NewSyncProgressRepository(db),
		MessageRepository:      NewMessageRepository(db),
	}
}

const searchableTextIndex = `CREATE INDEX IF NOT EXISTS idx_messages_searchable_text
	ON messages USING gin (to_tsvector('simple', coalesce(analysis_searchable_text, '')))`

func MigrateDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Account{},
		&models.SyncProgress{},
		&models.Message{},
	)
	if err != nil {
		return err
	}

	return db.Exec(searchableTextIndex).Error
}
