package services

import (
	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/repository"
	"github.com/customeros/mailscope/services/analyzer"
	"github.com/customeros/mailscope/services/events"
	"github.com/customeros/mailscope/services/imap"
	"github.com/customeros/mailscope/services/storage"
	"github.com/customeros/mailscope/services/syncer"
)

type Services struct {
	EventsService *events.EventsService
	Pool          interfaces.ConnectionPool
	Fetcher       interfaces.MailboxFetcher
	Analyzer      interfaces.MessageAnalyzer
	// Storage is nil when the raw message archive is not configured
	Storage       interfaces.StorageService
	SyncService   *syncer.SyncService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, err
	}

	pool := imap.NewConnectionPool(cfg.IMAPConfig, log)
	fetcher := imap.NewMailboxFetcher(log)
	messageAnalyzer := analyzer.NewMessageAnalyzer(cfg.AnalyzerConfig, log)

	rawStorage := storage.NewR2StorageService(cfg.R2StorageConfig)
	if rawStorage == nil && cfg.SyncConfig.ArchiveRaw {
		log.Warn("SYNC_ARCHIVE_RAW_MESSAGES is set but R2 storage is not configured, raw messages will not be archived")
	}

	services := Services{
		EventsService: eventsService,
		Pool:          pool,
		Fetcher:       fetcher,
		Analyzer:      messageAnalyzer,
		Storage:       rawStorage,
		SyncService: syncer.NewSyncService(
			cfg.SyncConfig,
			log,
			repos,
			pool,
			fetcher,
			messageAnalyzer,
			eventsService.Publisher,
			rawStorage,
		),
	}

	return &services, nil
}
