package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailscope/internal/models"
)

type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccounts(ctx context.Context) ([]*models.Account, error)
	GetActiveAccounts(ctx context.Context) ([]*models.Account, error)
	UpdateConnectionStatus(ctx context.Context, id string, connected bool, errorMessage string) error
	UpdateSyncStats(ctx context.Context, id string, lastSyncedAt time.Time, syncedEmails int64) error
}

type SyncProgressRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.SyncProgress, error)
	Save(ctx context.Context, progress *models.SyncProgress) error
	GetByStatus(ctx context.Context, status string) ([]*models.SyncProgress, error)
}

type MessageRepository interface {
	Exists(ctx context.Context, accountID, messageID string) (bool, error)
	// Create inserts the message and reports false when (account, message id) was already stored.
	Create(ctx context.Context, message *models.Message) (bool, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}
