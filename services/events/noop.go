package events

import (
	"context"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/logger"
)

// NoopPublisher is used when no broker is configured. Events are only logged.
type NoopPublisher struct {
	logger logger.Logger
}

func NewNoopPublisher(logger logger.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) PublishSyncEvent(_ context.Context, event dto.SyncEvent) error {
	p.logger.Debugf("[%s] %s (%s)", event.AccountID, event.Type, event.Status)
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
