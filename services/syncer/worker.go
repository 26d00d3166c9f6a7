package syncer

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/enum"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
)

const rawMessageContentType = "message/rfc822"

// execute walks the run's folders and finalises the run. Panics are contained
// here so one account cannot take the process down.
func (s *SyncService) execute(ctx context.Context, run *syncRun) {
	defer s.wg.Done()

	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.execute")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var failedFolders int
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("[%s] Sync panic: %v\n%s", run.account.ID, r, debug.Stack())
				runErr = &mserrors.SyncFatalError{AccountID: run.account.ID, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		failedFolders, runErr = s.processFolders(ctx, run)
	}()

	if runErr != nil {
		tracing.TraceErr(span, runErr)
	}
	s.finalize(ctx, run, failedFolders, runErr)
}

func (s *SyncService) processFolders(ctx context.Context, run *syncRun) (int, error) {
	failedFolders := 0

	for _, folder := range run.folders {
		if run.stopped() {
			break
		}

		capReached, err := s.processFolder(ctx, run, folder)
		if err != nil {
			var folderErr *mserrors.FolderError
			if !errors.As(err, &folderErr) {
				return failedFolders, err
			}
			failedFolders++
			s.log.Warnf("[%s] %v", run.account.ID, folderErr)
			s.updateProgress(ctx, run, func(p *models.SyncProgress) {
				p.FailedEmails++
				p.Folder(folder).Failed++
			})
			continue
		}
		if capReached {
			s.log.Infof("[%s] Reached the limit of %d emails", run.account.ID, run.maxEmails)
			break
		}
	}

	return failedFolders, nil
}

// processFolder pages through one folder newest first. It reports whether the
// run's email cap was reached.
func (s *SyncService) processFolder(ctx context.Context, run *syncRun, folder string) (bool, error) {
	total, err := s.fetcher.SelectFolder(ctx, run.client, folder)
	if err != nil {
		return false, mserrors.NewFolderError(folder, err)
	}

	s.updateProgress(ctx, run, func(p *models.SyncProgress) {
		p.CurrentFolder = folder
		p.Folder(folder).Total = int64(total)
		recomputeTotal(p)
	})

	var offset uint32
	for offset < total {
		if run.stopped() {
			return false, nil
		}

		limit := uint32(run.batchSize)
		if left := run.remaining(); left == 0 {
			return true, nil
		} else if left > 0 && uint32(left) < limit {
			limit = uint32(left)
		}
		window := limit
		if total-offset < window {
			window = total - offset
		}

		batch, err := s.fetcher.FetchBatch(ctx, run.client, folder, limit, offset)
		if err != nil {
			return false, mserrors.NewFolderError(folder, err)
		}

		s.processBatch(ctx, run, folder, batch, window)
		offset += window
		run.fetched += int(window)
	}

	return run.remaining() == 0, nil
}

func (s *SyncService) processBatch(ctx context.Context, run *syncRun, folder string, batch []*dto.RawMessage, window uint32) {
	accountID := run.account.ID
	var processed, failed int64
	var lastMessageID string

	for _, raw := range batch {
		if raw.MessageID == "" {
			raw.MessageID = utils.SyntheticMessageID(raw.UID, folder, run.account.Identity())
		}
		lastMessageID = raw.MessageID

		exists, err := s.repos.MessageRepository.Exists(ctx, accountID, raw.MessageID)
		if err != nil {
			s.log.Errorf("[%s] Dedup check failed for %s: %v", accountID, raw.MessageID, err)
			failed++
			continue
		}
		if exists {
			continue
		}

		message := newMessage(accountID, raw, s.analyzer.Analyze(ctx, raw))
		created, err := s.repos.MessageRepository.Create(ctx, message)
		if err != nil {
			s.log.Errorf("[%s] Failed to store %s: %v", accountID, raw.MessageID, err)
			failed++
			continue
		}
		if created {
			processed++
			s.archive(ctx, message, raw)
		}
	}

	// messages the fetcher could not parse
	if shortfall := int64(window) - int64(len(batch)); shortfall > 0 {
		failed += shortfall
	}

	s.updateProgress(ctx, run, func(p *models.SyncProgress) {
		p.ProcessedEmails += processed
		p.FailedEmails += failed
		fp := p.Folder(folder)
		fp.Processed += processed
		fp.Failed += failed
		if lastMessageID != "" {
			p.LastProcessedMessageID = lastMessageID
		}
		p.EmailsPerSecond = run.throughput()
	})
}

// finalize settles the terminal status. A stop outranks a pause, which outranks
// a failure.
func (s *SyncService) finalize(ctx context.Context, run *syncRun, failedFolders int, runErr error) {
	accountID := run.account.ID
	var eventType enum.SyncEventType

	run.mutex.Lock()
	p := run.progress
	switch {
	case run.requested == enum.SyncStatusIdle:
		markIdle(p)
	case run.requested == enum.SyncStatusPaused:
		p.Status = enum.SyncStatusPaused
	case runErr != nil:
		p.Status = enum.SyncStatusError
		p.ErrorMessage = runErr.Error()
		p.CompletedAt = utils.NowPtr()
		eventType = enum.SyncEventFailed
	case len(run.folders) > 0 && failedFolders == len(run.folders):
		p.Status = enum.SyncStatusError
		p.ErrorMessage = "all folders failed"
		p.CompletedAt = utils.NowPtr()
		eventType = enum.SyncEventFailed
	default:
		p.Status = enum.SyncStatusCompleted
		p.ErrorMessage = ""
		p.CompletedAt = utils.NowPtr()
		eventType = enum.SyncEventCompleted
	}
	p.CurrentFolder = ""
	if err := s.repos.SyncProgressRepository.Save(ctx, p); err != nil {
		s.log.Errorf("[%s] Failed to persist final sync state: %v", accountID, err)
	}
	status := p.Status
	run.mutex.Unlock()

	if status == enum.SyncStatusCompleted {
		s.recordCompletion(ctx, run)
	}

	// the slot goes back to the pool before a new run for this account can register
	s.pool.Release(run.account.Identity())
	s.unregister(run)
	close(run.done)

	if eventType != "" {
		s.publish(ctx, eventType, run)
	}

	snapshot := run.snapshot()
	s.log.Infof("[%s] Sync %s finished as %s: %d processed, %d failed",
		accountID, snapshot.RunID, status, snapshot.ProcessedEmails, snapshot.FailedEmails)
}

func (s *SyncService) recordCompletion(ctx context.Context, run *syncRun) {
	accountID := run.account.ID

	count, err := s.repos.MessageRepository.CountByAccount(ctx, accountID)
	if err != nil {
		s.log.Errorf("[%s] Failed to count stored messages: %v", accountID, err)
		return
	}
	if err := s.repos.AccountRepository.UpdateSyncStats(ctx, accountID, utils.Now(), count); err != nil {
		s.log.Errorf("[%s] Failed to update sync stats: %v", accountID, err)
	}
}

func (s *SyncService) updateProgress(ctx context.Context, run *syncRun, fn func(p *models.SyncProgress)) {
	run.mutex.Lock()
	defer run.mutex.Unlock()

	fn(run.progress)
	if err := s.repos.SyncProgressRepository.Save(ctx, run.progress); err != nil {
		s.log.Errorf("[%s] Failed to persist sync progress: %v", run.account.ID, err)
	}
}

func (s *SyncService) archive(ctx context.Context, message *models.Message, raw *dto.RawMessage) {
	if s.storage == nil || !s.cfg.ArchiveRaw || len(raw.Raw) == 0 {
		return
	}
	key := utils.RawMessageKey(message.AccountID, message.ID)
	if err := s.storage.Upload(ctx, key, raw.Raw, rawMessageContentType); err != nil {
		s.log.Warnf("[%s] Failed to archive %s: %v", message.AccountID, message.MessageID, err)
	}
}

func newMessage(accountID string, raw *dto.RawMessage, analysis models.Analysis) *models.Message {
	message := &models.Message{
		ID:           utils.GenerateNanoIDWithPrefix("msg", 24),
		AccountID:    accountID,
		MessageID:    raw.MessageID,
		Folder:       raw.Folder,
		ImapUID:      raw.UID,
		SeqNum:       raw.SeqNum,
		Subject:      raw.Subject,
		FromHeader:   raw.FromHeader,
		FromAddress:  raw.FromAddress,
		FromName:     raw.FromName,
		ToAddresses:  raw.To,
		CcAddresses:  raw.Cc,
		BccAddresses: raw.Bcc,
		BodyText:     raw.Text,
		BodyHTML:     raw.HTML,
		Content:      raw.Content,
		Flags:        raw.Flags,
		Size:         raw.Size,
		Analysis:     analysis,
	}
	if !raw.SentAt.IsZero() {
		sentAt := raw.SentAt.UTC()
		message.SentAt = &sentAt
	}
	if !raw.InternalDate.IsZero() {
		receivedAt := raw.InternalDate.UTC()
		message.ReceivedAt = &receivedAt
	}
	return message
}
