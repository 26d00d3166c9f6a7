package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/enum"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/repository"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
)

const (
	maxBatchSize     = 1000
	defaultBatchSize = 50
)

type SyncService struct {
	cfg       *config.SyncConfig
	log       logger.Logger
	repos     *repository.Repositories
	pool      interfaces.ConnectionPool
	fetcher   interfaces.MailboxFetcher
	analyzer  interfaces.MessageAnalyzer
	publisher interfaces.SyncEventPublisher
	storage   interfaces.StorageService

	runs  map[string]*syncRun
	mutex sync.Mutex
	wg    sync.WaitGroup
}

// NewSyncService wires the orchestrator. publisher and storage may be nil.
func NewSyncService(
	cfg *config.SyncConfig,
	log logger.Logger,
	repos *repository.Repositories,
	pool interfaces.ConnectionPool,
	fetcher interfaces.MailboxFetcher,
	analyzer interfaces.MessageAnalyzer,
	publisher interfaces.SyncEventPublisher,
	storage interfaces.StorageService,
) *SyncService {
	return &SyncService{
		cfg:       cfg,
		log:       log,
		repos:     repos,
		pool:      pool,
		fetcher:   fetcher,
		analyzer:  analyzer,
		publisher: publisher,
		storage:   storage,
		runs:      make(map[string]*syncRun),
	}
}

func (s *SyncService) Start(ctx context.Context, accountID string, params dto.SyncParams) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	tracing.LogObjectAsJson(span, "params", params)

	batchSize, maxEmails, err := s.resolveParams(params)
	if err != nil {
		return nil, err
	}

	account, err := s.repos.AccountRepository.GetAccount(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, mserrors.ErrAccountNotFound
	}

	existing, err := s.repos.SyncProgressRepository.GetByAccountID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil && existing.Status == enum.SyncStatusRunning {
		return nil, mserrors.ErrSyncAlreadyRunning
	}

	progress := &models.SyncProgress{
		AccountID:      accountID,
		RunID:          utils.NewRunID(),
		Status:         enum.SyncStatusRunning,
		FolderProgress: models.FolderProgressMap{},
		StartedAt:      utils.NowPtr(),
	}
	if existing != nil {
		progress.ID = existing.ID
		progress.CreatedAt = existing.CreatedAt
	}

	run := newSyncRun(account, progress)
	run.batchSize = batchSize
	run.maxEmails = maxEmails
	if err := s.register(run); err != nil {
		return nil, err
	}

	if err := s.repos.SyncProgressRepository.Save(ctx, progress); err != nil {
		s.unregister(run)
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.launch(ctx, run, params.Folders); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.publish(ctx, enum.SyncEventStarted, run)
	s.log.Infof("[%s] Sync %s started: batch size %d, max emails %d, %d folders",
		accountID, progress.RunID, batchSize, maxEmails, len(run.folders))
	return run.snapshot(), nil
}

func (s *SyncService) Pause(ctx context.Context, accountID string) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Pause")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	run := s.activeRun(accountID)
	if run == nil {
		return nil, mserrors.ErrSyncNotRunning
	}

	run.mutex.Lock()
	if run.progress.Status != enum.SyncStatusRunning || run.requested != "" {
		run.mutex.Unlock()
		return nil, mserrors.ErrSyncNotRunning
	}
	run.progress.Status = enum.SyncStatusPaused
	run.request(enum.SyncStatusPaused)
	err := s.repos.SyncProgressRepository.Save(ctx, run.progress)
	snapshot := run.progress.Clone()
	run.mutex.Unlock()

	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("[%s] Failed to persist pause: %v", accountID, err)
	}

	s.publish(ctx, enum.SyncEventPaused, run)
	s.log.Infof("[%s] Sync %s pause requested", accountID, snapshot.RunID)
	return snapshot, nil
}

func (s *SyncService) Resume(ctx context.Context, accountID string) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Resume")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	if run := s.activeRun(accountID); run != nil {
		run.mutex.Lock()
		windingDown := run.requested != ""
		run.mutex.Unlock()
		if windingDown {
			return nil, mserrors.ErrSyncStopping
		}
		return nil, mserrors.ErrSyncNotPaused
	}

	progress, err := s.repos.SyncProgressRepository.GetByAccountID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if progress == nil || progress.Status != enum.SyncStatusPaused {
		return nil, mserrors.ErrSyncNotPaused
	}

	account, err := s.repos.AccountRepository.GetAccount(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, mserrors.ErrAccountNotFound
	}

	progress.Status = enum.SyncStatusRunning
	progress.ErrorMessage = ""
	progress.CompletedAt = nil

	run := newSyncRun(account, progress)
	run.batchSize, run.maxEmails, _ = s.resolveParams(dto.SyncParams{})
	if err := s.register(run); err != nil {
		return nil, err
	}

	if err := s.repos.SyncProgressRepository.Save(ctx, progress); err != nil {
		s.unregister(run)
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.launch(ctx, run, nil); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.publish(ctx, enum.SyncEventResumed, run)
	s.log.Infof("[%s] Sync %s resumed at %d processed", accountID, progress.RunID, progress.ProcessedEmails)
	return run.snapshot(), nil
}

func (s *SyncService) Stop(ctx context.Context, accountID string) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Stop")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	if run := s.activeRun(accountID); run != nil {
		run.mutex.Lock()
		markIdle(run.progress)
		run.request(enum.SyncStatusIdle)
		err := s.repos.SyncProgressRepository.Save(ctx, run.progress)
		snapshot := run.progress.Clone()
		run.mutex.Unlock()

		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("[%s] Failed to persist stop: %v", accountID, err)
		}
		s.publish(ctx, enum.SyncEventStopped, run)
		s.log.Infof("[%s] Sync %s stop requested", accountID, snapshot.RunID)
		return snapshot, nil
	}

	progress, err := s.repos.SyncProgressRepository.GetByAccountID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if progress == nil {
		return models.NewIdleSyncProgress(accountID), nil
	}
	if progress.Status == enum.SyncStatusIdle {
		return progress, nil
	}

	markIdle(progress)
	if err := s.repos.SyncProgressRepository.Save(ctx, progress); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.publishProgress(ctx, enum.SyncEventStopped, progress)
	return progress, nil
}

func (s *SyncService) Status(ctx context.Context, accountID string) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Status")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	if run := s.activeRun(accountID); run != nil {
		return run.snapshot(), nil
	}

	progress, err := s.repos.SyncProgressRepository.GetByAccountID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if progress == nil {
		return models.NewIdleSyncProgress(accountID), nil
	}
	return progress, nil
}

func (s *SyncService) StartAll(ctx context.Context) map[string]dto.SyncStartResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.StartAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	results := make(map[string]dto.SyncStartResult)

	accounts, err := s.repos.AccountRepository.GetActiveAccounts(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to load active accounts: %v", err)
		return results
	}

	exhausted := false
	for _, account := range accounts {
		// once the pool is full, the remaining accounts would each wait out the acquire timeout
		if exhausted {
			results[account.ID] = dto.SyncStartResult{Error: mserrors.ErrPoolExhausted.Error()}
			continue
		}
		progress, err := s.Start(ctx, account.ID, dto.SyncParams{})
		if err != nil {
			exhausted = errors.Is(err, mserrors.ErrPoolExhausted)
			results[account.ID] = dto.SyncStartResult{Error: err.Error()}
			continue
		}
		results[account.ID] = dto.SyncStartResult{Progress: progress}
	}

	span.SetTag("accounts", len(accounts))
	return results
}

func (s *SyncService) StartScheduled(ctx context.Context) int {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.StartScheduled")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.repos.AccountRepository.GetActiveAccounts(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to load active accounts: %v", err)
		return 0
	}

	started := 0
	for _, account := range accounts {
		if !account.IsConnected || s.activeRun(account.ID) != nil {
			continue
		}

		_, err := s.Start(ctx, account.ID, dto.SyncParams{})
		switch {
		case err == nil:
			started++
		case errors.Is(err, mserrors.ErrSyncAlreadyRunning):
			s.log.Debugf("[%s] Scheduled sync skipped, already running", account.ID)
		case errors.Is(err, mserrors.ErrPoolExhausted):
			s.log.Warnf("[%s] IMAP pool exhausted, remaining accounts deferred to the next scheduled run", account.ID)
			span.SetTag("started", started)
			return started
		default:
			s.log.Errorf("[%s] Scheduled sync failed to start: %v", account.ID, err)
		}
	}

	span.SetTag("started", started)
	return started
}

// RecoverInterrupted marks RUNNING records left behind by a previous process as ERROR.
func (s *SyncService) RecoverInterrupted(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.RecoverInterrupted")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	stale, err := s.repos.SyncProgressRepository.GetByStatus(ctx, enum.SyncStatusRunning.String())
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	for _, progress := range stale {
		if s.activeRun(progress.AccountID) != nil {
			continue
		}
		progress.Status = enum.SyncStatusError
		progress.ErrorMessage = "interrupted"
		progress.CompletedAt = utils.NowPtr()
		if err := s.repos.SyncProgressRepository.Save(ctx, progress); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		s.log.Warnf("[%s] Sync %s was interrupted by a restart", progress.AccountID, progress.RunID)
	}
	return nil
}

// Shutdown pauses every active run so it can be resumed later, waits for the
// runs to reach a batch boundary and closes all IMAP sessions.
func (s *SyncService) Shutdown(timeout time.Duration) {
	ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{AppSource: utils.AppSourceMailscope})

	s.mutex.Lock()
	accountIDs := make([]string, 0, len(s.runs))
	for id := range s.runs {
		accountIDs = append(accountIDs, id)
	}
	s.mutex.Unlock()

	for _, id := range accountIDs {
		if _, err := s.Pause(ctx, id); err != nil && !errors.Is(err, mserrors.ErrSyncNotRunning) {
			s.log.Errorf("[%s] Failed to pause on shutdown: %v", id, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All sync runs stopped")
	case <-time.After(timeout):
		s.log.Warnf("Timed out after %s waiting for sync runs to stop", timeout)
	}

	s.pool.ReleaseAll()
}

func (s *SyncService) resolveParams(params dto.SyncParams) (int, int, error) {
	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = s.cfg.DefaultBatchSize
		if batchSize <= 0 {
			batchSize = defaultBatchSize
		}
	}
	if batchSize < 1 || batchSize > maxBatchSize {
		return 0, 0, mserrors.ErrInvalidBatchSize
	}

	maxEmails := params.MaxEmails
	if maxEmails < 0 {
		return 0, 0, mserrors.ErrInvalidMaxEmails
	}
	if maxEmails == 0 {
		maxEmails = s.cfg.DefaultMaxEmails
	}
	return batchSize, maxEmails, nil
}

// launch connects the run, resolves its folders and spawns the worker.
// On failure the run is finalised as ERROR and unregistered.
func (s *SyncService) launch(ctx context.Context, run *syncRun, folders []string) error {
	accountID := run.account.ID

	c, err := s.pool.Acquire(ctx, run.account.Identity(), dto.NewConnectionParams(run.account))
	if err != nil {
		// a full pool says nothing about the account's server
		if !errors.Is(err, mserrors.ErrPoolExhausted) {
			if updateErr := s.repos.AccountRepository.UpdateConnectionStatus(ctx, accountID, false, err.Error()); updateErr != nil {
				s.log.Errorf("[%s] Failed to record connection failure: %v", accountID, updateErr)
			}
		}
		s.abort(ctx, run, err)
		return err
	}
	if err := s.repos.AccountRepository.UpdateConnectionStatus(ctx, accountID, true, ""); err != nil {
		s.log.Errorf("[%s] Failed to record connection: %v", accountID, err)
	}
	run.client = c

	if len(folders) == 0 {
		folders, err = s.fetcher.ListFolders(ctx, c)
		if err != nil {
			fatal := &mserrors.SyncFatalError{AccountID: accountID, Err: err}
			s.abort(ctx, run, fatal)
			return fatal
		}
	}
	run.folders = utils.UniqueStrings(folders)

	runCtx := utils.WithCustomContext(context.Background(), &utils.CustomContext{
		AppSource: utils.GetAppSourceFromContext(ctx),
		AccountID: accountID,
		RunID:     run.progress.RunID,
	})

	s.wg.Add(1)
	go s.execute(runCtx, run)
	return nil
}

// abort finalises a run that never reached its worker.
func (s *SyncService) abort(ctx context.Context, run *syncRun, cause error) {
	run.mutex.Lock()
	run.progress.Status = enum.SyncStatusError
	run.progress.ErrorMessage = cause.Error()
	run.progress.CompletedAt = utils.NowPtr()
	if err := s.repos.SyncProgressRepository.Save(ctx, run.progress); err != nil {
		s.log.Errorf("[%s] Failed to persist sync error: %v", run.account.ID, err)
	}
	run.mutex.Unlock()

	if run.client != nil {
		s.pool.Release(run.account.Identity())
	}
	close(run.done)
	s.unregister(run)
	s.publish(ctx, enum.SyncEventFailed, run)
	s.log.Errorf("[%s] Sync %s failed to start: %v", run.account.ID, run.progress.RunID, cause)
}

func (s *SyncService) register(run *syncRun) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.runs[run.account.ID]; ok {
		return mserrors.ErrSyncAlreadyRunning
	}
	s.runs[run.account.ID] = run
	return nil
}

func (s *SyncService) unregister(run *syncRun) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if current, ok := s.runs[run.account.ID]; ok && current == run {
		delete(s.runs, run.account.ID)
	}
}

func (s *SyncService) activeRun(accountID string) *syncRun {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.runs[accountID]
}

func (s *SyncService) publish(ctx context.Context, eventType enum.SyncEventType, run *syncRun) {
	s.publishProgress(ctx, eventType, run.snapshot())
}

func (s *SyncService) publishProgress(ctx context.Context, eventType enum.SyncEventType, progress *models.SyncProgress) {
	if s.publisher == nil {
		return
	}
	event := dto.SyncEvent{
		Type:            eventType,
		AccountID:       progress.AccountID,
		RunID:           progress.RunID,
		Status:          progress.Status,
		ProcessedEmails: progress.ProcessedEmails,
		FailedEmails:    progress.FailedEmails,
		ErrorMessage:    progress.ErrorMessage,
		OccurredAt:      utils.Now(),
	}
	if err := s.publisher.PublishSyncEvent(ctx, event); err != nil {
		s.log.Warnf("[%s] Failed to publish %s: %v", progress.AccountID, eventType, err)
	}
}

func markIdle(p *models.SyncProgress) {
	p.Status = enum.SyncStatusIdle
	p.CompletedAt = utils.NowPtr()
	p.LastProcessedMessageID = ""
}
