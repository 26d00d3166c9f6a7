package interfaces

import (
	"context"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/models"
)

type SyncService interface {
	Start(ctx context.Context, accountID string, params dto.SyncParams) (*models.SyncProgress, error)
	Pause(ctx context.Context, accountID string) (*models.SyncProgress, error)
	Resume(ctx context.Context, accountID string) (*models.SyncProgress, error)
	Stop(ctx context.Context, accountID string) (*models.SyncProgress, error)
	Status(ctx context.Context, accountID string) (*models.SyncProgress, error)
	StartAll(ctx context.Context) map[string]dto.SyncStartResult
	// StartScheduled starts every active, connected account that is not already running.
	StartScheduled(ctx context.Context) int
}
