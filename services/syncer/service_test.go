package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/enum"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/models"
)

func waitForStatus(t *testing.T, env *testEnv, accountID string, status enum.SyncStatus) *models.SyncProgress {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.service.activeRun(accountID) == nil
	}, 2*time.Second, 10*time.Millisecond)

	progress, err := env.service.Status(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, status, progress.Status, progress.ErrorMessage)
	return progress
}

func TestStart_EmptyMailboxCompletes(t *testing.T) {
	fetcher := &fakeFetcher{order: []string{"INBOX"}, folders: map[string][]*dto.RawMessage{}}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	progress, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusRunning, progress.Status)
	assert.NotEmpty(t, progress.RunID)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Zero(t, final.ProcessedEmails)
	assert.Zero(t, final.FailedEmails)
	assert.Zero(t, final.TotalEmails)
	assert.NotNil(t, final.CompletedAt)

	account := env.accounts.get("acct_1")
	assert.NotNil(t, account.LastSyncedAt)
	assert.Zero(t, account.SyncedEmails)
	assert.Equal(t, []enum.SyncEventType{enum.SyncEventStarted, enum.SyncEventCompleted}, env.publisher.types())
}

func TestStart_ProcessesFoldersAndSkipsStoredMessages(t *testing.T) {
	fetcher := &fakeFetcher{
		order: []string{"INBOX", "Archive"},
		folders: map[string][]*dto.RawMessage{
			"INBOX":   messages("INBOX", 5),
			"Archive": messages("Archive", 3),
		},
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))
	env.messages.messages[messageKey("acct_1", "<INBOX-3@example.org>")] = &models.Message{AccountID: "acct_1", MessageID: "<INBOX-3@example.org>"}

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: 2})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, int64(7), final.ProcessedEmails)
	assert.Zero(t, final.FailedEmails)
	assert.Equal(t, int64(8), final.TotalEmails)
	assert.Equal(t, int64(4), final.FolderProgress["INBOX"].Processed)
	assert.Equal(t, int64(5), final.FolderProgress["INBOX"].Total)
	assert.Equal(t, int64(3), final.FolderProgress["Archive"].Processed)
	assert.Equal(t, "<Archive-1@example.org>", final.LastProcessedMessageID)
	assert.Equal(t, 8, env.messages.count())
	assert.Equal(t, int64(8), env.accounts.get("acct_1").SyncedEmails)
	assert.Len(t, env.storage.keys, 7)
}

func TestStart_FolderFailureDoesNotFailRun(t *testing.T) {
	fetcher := &fakeFetcher{
		order:      []string{"INBOX", "Broken"},
		folders:    map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 2)},
		selectErrs: map[string]error{"Broken": fmt.Errorf("NO no such mailbox")},
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, int64(2), final.ProcessedEmails)
	assert.Equal(t, int64(1), final.FailedEmails)
	assert.Equal(t, int64(1), final.FolderProgress["Broken"].Failed)
}

func TestStart_AllFoldersFailing(t *testing.T) {
	fetcher := &fakeFetcher{
		order:      []string{"INBOX"},
		folders:    map[string][]*dto.RawMessage{},
		selectErrs: map[string]error{"INBOX": fmt.Errorf("NO no such mailbox")},
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusError)
	assert.Equal(t, "all folders failed", final.ErrorMessage)
	assert.Equal(t, int64(1), final.FailedEmails)
	assert.Contains(t, env.publisher.types(), enum.SyncEventFailed)
}

func TestStart_FolderFilter(t *testing.T) {
	fetcher := &fakeFetcher{
		order: []string{"INBOX", "Archive"},
		folders: map[string][]*dto.RawMessage{
			"INBOX":   messages("INBOX", 2),
			"Archive": messages("Archive", 3),
		},
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{Folders: []string{"Archive"}})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, int64(3), final.ProcessedEmails)
	assert.NotContains(t, final.FolderProgress, "INBOX")
}

func TestStart_MaxEmailsCap(t *testing.T) {
	fetcher := &fakeFetcher{
		order: []string{"INBOX", "Archive"},
		folders: map[string][]*dto.RawMessage{
			"INBOX":   messages("INBOX", 10),
			"Archive": messages("Archive", 3),
		},
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: 2, MaxEmails: 3})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, int64(3), final.ProcessedEmails)
	assert.Equal(t, "<INBOX-8@example.org>", final.LastProcessedMessageID)
	assert.NotContains(t, final.FolderProgress, "Archive")
}

func TestStart_CountsParseAndStoreFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		order:      []string{"INBOX"},
		folders:    map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 4)},
		unparsable: map[uint32]bool{2: true},
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))
	env.messages.failOn["<INBOX-4@example.org>"] = true

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, int64(2), final.ProcessedEmails)
	assert.Equal(t, int64(2), final.FailedEmails)
}

func TestStart_SynthesisesMissingMessageID(t *testing.T) {
	inbox := messages("INBOX", 1)
	inbox[0].MessageID = ""
	fetcher := &fakeFetcher{order: []string{"INBOX"}, folders: map[string][]*dto.RawMessage{"INBOX": inbox}}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)

	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, "<uid.101.INBOX@acct_1@example.org@imap.example.org>", final.LastProcessedMessageID)
}

func TestStart_Validation(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: 1001})
	assert.True(t, errors.Is(err, mserrors.ErrInvalidBatchSize))

	_, err = env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: -1})
	assert.True(t, errors.Is(err, mserrors.ErrInvalidBatchSize))

	_, err = env.service.Start(context.Background(), "acct_1", dto.SyncParams{MaxEmails: -1})
	assert.True(t, errors.Is(err, mserrors.ErrInvalidMaxEmails))

	_, err = env.service.Start(context.Background(), "missing", dto.SyncParams{})
	assert.True(t, errors.Is(err, mserrors.ErrAccountNotFound))

	assert.Zero(t, env.progress.saveCount())
}

func TestStart_ConnectionFailure(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))
	env.pool.err = mserrors.NewConnectionError("acct_1@example.org@imap.example.org", fmt.Errorf("authentication failed"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.Error(t, err)
	assert.True(t, mserrors.IsConnectionError(err))

	account := env.accounts.get("acct_1")
	assert.False(t, account.IsConnected)
	assert.Contains(t, account.ErrorMessage, "authentication failed")

	progress, err := env.service.Status(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusError, progress.Status)
	assert.Nil(t, env.service.activeRun("acct_1"))
}

func TestStart_PoolExhaustedKeepsAccountConnected(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))
	env.pool.err = mserrors.NewConnectionError("acct_1@example.org@imap.example.org", mserrors.ErrPoolExhausted)

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mserrors.ErrPoolExhausted))

	account := env.accounts.get("acct_1")
	assert.True(t, account.IsConnected)
	assert.Empty(t, account.ErrorMessage)

	progress, err := env.service.Status(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusError, progress.Status)
	assert.Empty(t, env.pool.releasedIdentities())
}

func TestFinishedRunReleasesSession(t *testing.T) {
	fetcher := &fakeFetcher{
		order:   []string{"INBOX"},
		folders: map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 3)},
	}
	account := testAccount("acct_1")
	env := newTestEnv(fetcher, account)

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)
	waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)

	assert.Equal(t, []string{account.Identity()}, env.pool.releasedIdentities())
}

func TestFailedFolderListingReleasesSession(t *testing.T) {
	fetcher := &failingListFetcher{fakeFetcher: &fakeFetcher{}}
	account := testAccount("acct_1")
	env := newTestEnv(&fakeFetcher{}, account)
	env.service.fetcher = fetcher

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.Error(t, err)

	assert.Equal(t, []string{account.Identity()}, env.pool.releasedIdentities())
}

func TestStartScheduled_DefersRemainingAccountsWhenPoolExhausted(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"), testAccount("acct_2"), testAccount("acct_3"))
	env.pool.err = mserrors.NewConnectionError("pool", mserrors.ErrPoolExhausted)

	started := env.service.StartScheduled(context.Background())

	assert.Zero(t, started)
	assert.Equal(t, 1, env.pool.acquireAttempts())
	for _, id := range []string{"acct_1", "acct_2", "acct_3"} {
		assert.True(t, env.accounts.get(id).IsConnected, id)
	}
}

func TestStartAll_StopsAcquiringWhenPoolExhausted(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"), testAccount("acct_2"), testAccount("acct_3"))
	env.pool.err = mserrors.NewConnectionError("pool", mserrors.ErrPoolExhausted)

	results := env.service.StartAll(context.Background())

	require.Len(t, results, 3)
	for id, result := range results {
		assert.Contains(t, result.Error, mserrors.ErrPoolExhausted.Error(), id)
	}
	assert.Equal(t, 1, env.pool.acquireAttempts())
}

func TestStart_AlreadyRunning(t *testing.T) {
	fetcher := &fakeFetcher{
		order:   []string{"INBOX"},
		folders: map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 2)},
		gate:    make(chan struct{}),
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	require.NoError(t, err)

	_, err = env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	assert.True(t, errors.Is(err, mserrors.ErrSyncAlreadyRunning))

	close(fetcher.gate)
	waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
}

func TestStart_RunningRecordBlocksStart(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))
	env.progress.records["acct_1"] = &models.SyncProgress{AccountID: "acct_1", Status: enum.SyncStatusRunning}

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{})
	assert.True(t, errors.Is(err, mserrors.ErrSyncAlreadyRunning))
}

func TestPauseAndResume(t *testing.T) {
	fetcher := &fakeFetcher{
		order:   []string{"INBOX"},
		folders: map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 4)},
		gate:    make(chan struct{}),
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))
	env.service.cfg.DefaultBatchSize = 1

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: 1})
	require.NoError(t, err)

	fetcher.gate <- struct{}{}
	// the second batch is blocked in the fetcher
	require.Eventually(t, func() bool {
		return fetcher.fetchCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	paused, err := env.service.Pause(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusPaused, paused.Status)

	_, err = env.service.Pause(context.Background(), "acct_1")
	assert.True(t, errors.Is(err, mserrors.ErrSyncNotRunning))

	_, err = env.service.Resume(context.Background(), "acct_1")
	assert.True(t, errors.Is(err, mserrors.ErrSyncStopping))

	// let the in-flight batch finish
	fetcher.gate <- struct{}{}
	afterPause := waitForStatus(t, env, "acct_1", enum.SyncStatusPaused)
	assert.Equal(t, int64(2), afterPause.ProcessedEmails)
	assert.Equal(t, "<INBOX-3@example.org>", afterPause.LastProcessedMessageID)

	resumed, err := env.service.Resume(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusRunning, resumed.Status)
	assert.Equal(t, int64(2), resumed.ProcessedEmails)
	assert.Equal(t, afterPause.RunID, resumed.RunID)

	close(fetcher.gate)
	final := waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	assert.Equal(t, int64(4), final.ProcessedEmails)
	assert.Equal(t, int64(4), final.TotalEmails)
	assert.Equal(t, 4, env.messages.count())

	history := env.progress.processedHistory()
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1])
	}
	assert.Equal(t, []enum.SyncEventType{
		enum.SyncEventStarted, enum.SyncEventPaused, enum.SyncEventResumed, enum.SyncEventCompleted,
	}, env.publisher.types())
}

func TestPauseAndResume_InvalidStates(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))

	_, err := env.service.Pause(context.Background(), "acct_1")
	assert.True(t, errors.Is(err, mserrors.ErrSyncNotRunning))

	_, err = env.service.Resume(context.Background(), "acct_1")
	assert.True(t, errors.Is(err, mserrors.ErrSyncNotPaused))

	env.progress.records["acct_1"] = &models.SyncProgress{AccountID: "acct_1", Status: enum.SyncStatusCompleted}
	_, err = env.service.Resume(context.Background(), "acct_1")
	assert.True(t, errors.Is(err, mserrors.ErrSyncNotPaused))
}

func TestStop_ActiveRun(t *testing.T) {
	fetcher := &fakeFetcher{
		order:   []string{"INBOX"},
		folders: map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 3)},
		gate:    make(chan struct{}),
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: 1})
	require.NoError(t, err)

	stopped, err := env.service.Stop(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusIdle, stopped.Status)

	close(fetcher.gate)
	final := waitForStatus(t, env, "acct_1", enum.SyncStatusIdle)
	assert.NotNil(t, final.CompletedAt)
	assert.Empty(t, final.LastProcessedMessageID)
	assert.LessOrEqual(t, final.ProcessedEmails, int64(1))
}

func TestStop_IsIdempotent(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))

	progress, err := env.service.Stop(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusIdle, progress.Status)
	assert.Zero(t, env.progress.saveCount())

	env.progress.records["acct_1"] = &models.SyncProgress{
		AccountID:              "acct_1",
		Status:                 enum.SyncStatusPaused,
		ProcessedEmails:        7,
		LastProcessedMessageID: "<7@example.org>",
	}
	first, err := env.service.Stop(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusIdle, first.Status)
	assert.Empty(t, first.LastProcessedMessageID)
	assert.Equal(t, int64(7), first.ProcessedEmails)
	saves := env.progress.saveCount()

	second, err := env.service.Stop(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusIdle, second.Status)
	assert.Equal(t, saves, env.progress.saveCount())
}

func TestStatus_NeverSynced(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))

	progress, err := env.service.Status(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusIdle, progress.Status)
	assert.Equal(t, "acct_1", progress.AccountID)
	assert.Zero(t, progress.ProcessedEmails)
}

func TestStartAll(t *testing.T) {
	inactive := testAccount("acct_3")
	inactive.IsActive = false
	fetcher := &fakeFetcher{order: []string{"INBOX"}, folders: map[string][]*dto.RawMessage{}}
	env := newTestEnv(fetcher, testAccount("acct_1"), testAccount("acct_2"), inactive)
	env.progress.records["acct_2"] = &models.SyncProgress{AccountID: "acct_2", Status: enum.SyncStatusRunning}

	results := env.service.StartAll(context.Background())
	require.Len(t, results, 2)
	assert.Empty(t, results["acct_1"].Error)
	assert.NotNil(t, results["acct_1"].Progress)
	assert.Equal(t, mserrors.ErrSyncAlreadyRunning.Error(), results["acct_2"].Error)

	waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
}

func TestStartScheduled(t *testing.T) {
	disconnected := testAccount("acct_2")
	disconnected.IsConnected = false
	fetcher := &fakeFetcher{order: []string{"INBOX"}, folders: map[string][]*dto.RawMessage{}}
	env := newTestEnv(fetcher, testAccount("acct_1"), disconnected, testAccount("acct_3"))
	env.progress.records["acct_3"] = &models.SyncProgress{AccountID: "acct_3", Status: enum.SyncStatusRunning}

	started := env.service.StartScheduled(context.Background())
	assert.Equal(t, 1, started)

	waitForStatus(t, env, "acct_1", enum.SyncStatusCompleted)
	progress, err := env.service.Status(context.Background(), "acct_2")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusIdle, progress.Status)
}

func TestRecoverInterrupted(t *testing.T) {
	env := newTestEnv(&fakeFetcher{}, testAccount("acct_1"))
	env.progress.records["acct_1"] = &models.SyncProgress{AccountID: "acct_1", Status: enum.SyncStatusRunning, ProcessedEmails: 12}

	require.NoError(t, env.service.RecoverInterrupted(context.Background()))

	progress, err := env.service.Status(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusError, progress.Status)
	assert.Equal(t, "interrupted", progress.ErrorMessage)
	assert.Equal(t, int64(12), progress.ProcessedEmails)
}

func TestShutdown_PausesActiveRuns(t *testing.T) {
	fetcher := &fakeFetcher{
		order:   []string{"INBOX"},
		folders: map[string][]*dto.RawMessage{"INBOX": messages("INBOX", 3)},
		gate:    make(chan struct{}),
	}
	env := newTestEnv(fetcher, testAccount("acct_1"))

	_, err := env.service.Start(context.Background(), "acct_1", dto.SyncParams{BatchSize: 1})
	require.NoError(t, err)

	go func() {
		fetcher.gate <- struct{}{}
	}()
	env.service.Shutdown(2 * time.Second)

	waitForStatus(t, env, "acct_1", enum.SyncStatusPaused)
	assert.Equal(t, 1, env.pool.releasedAll)
}
