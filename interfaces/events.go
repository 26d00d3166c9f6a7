package interfaces

import (
	"context"

	"github.com/customeros/mailscope/dto"
)

type SyncEventPublisher interface {
	PublishSyncEvent(ctx context.Context, event dto.SyncEvent) error
	Close() error
}
