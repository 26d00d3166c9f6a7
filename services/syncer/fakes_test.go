package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/repository"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func (r *fakeAccountRepository) GetAccount(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeAccountRepository) GetAccounts(_ context.Context) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for _, a := range r.accounts {
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeAccountRepository) GetActiveAccounts(ctx context.Context) ([]*models.Account, error) {
	all, _ := r.GetAccounts(ctx)
	var out []*models.Account
	for _, a := range all {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepository) UpdateConnectionStatus(_ context.Context, id string, connected bool, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.IsConnected = connected
		a.ErrorMessage = errorMessage
	}
	return nil
}

func (r *fakeAccountRepository) UpdateSyncStats(_ context.Context, id string, lastSyncedAt time.Time, syncedEmails int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.LastSyncedAt = &lastSyncedAt
		a.SyncedEmails = syncedEmails
	}
	return nil
}

func (r *fakeAccountRepository) get(id string) models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.accounts[id]
}

type fakeProgressRepository struct {
	mu      sync.Mutex
	records map[string]*models.SyncProgress
	saves   int
	history []models.SyncProgress
}

func (r *fakeProgressRepository) GetByAccountID(_ context.Context, accountID string) (*models.SyncProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.records[accountID]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (r *fakeProgressRepository) Save(_ context.Context, progress *models.SyncProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[progress.AccountID] = progress.Clone()
	r.history = append(r.history, *progress.Clone())
	r.saves++
	return nil
}

func (r *fakeProgressRepository) GetByStatus(_ context.Context, status string) ([]*models.SyncProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SyncProgress
	for _, p := range r.records {
		if p.Status.String() == status {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *fakeProgressRepository) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *fakeProgressRepository) processedHistory() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.history))
	for _, p := range r.history {
		out = append(out, p.ProcessedEmails)
	}
	return out
}

type fakeMessageRepository struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	failOn   map[string]bool
}

func messageKey(accountID, messageID string) string {
	return accountID + "|" + messageID
}

func (r *fakeMessageRepository) Exists(_ context.Context, accountID, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.messages[messageKey(accountID, messageID)]
	return ok, nil
}

func (r *fakeMessageRepository) Create(_ context.Context, message *models.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[message.MessageID] {
		return false, fmt.Errorf("insert failed")
	}
	key := messageKey(message.AccountID, message.MessageID)
	if _, ok := r.messages[key]; ok {
		return false, nil
	}
	r.messages[key] = message
	return true, nil
}

func (r *fakeMessageRepository) CountByAccount(_ context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakePool struct {
	mu          sync.Mutex
	err         error
	attempts    int
	acquired    int
	released    []string
	releasedAll int
}

func (p *fakePool) Acquire(_ context.Context, _ string, _ dto.ConnectionParams) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	return &client.Client{}, nil
}

func (p *fakePool) Release(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, identity)
}

func (p *fakePool) releasedIdentities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.released...)
}

func (p *fakePool) acquireAttempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *fakePool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releasedAll++
}

func (p *fakePool) Stats() interfaces.PoolStats {
	return interfaces.PoolStats{}
}

// fakeFetcher serves folders whose messages are listed oldest first, so index i is sequence number i+1.
type fakeFetcher struct {
	mu         sync.Mutex
	order      []string
	folders    map[string][]*dto.RawMessage
	selectErrs map[string]error
	unparsable map[uint32]bool
	gate       chan struct{}
	fetches    int
}

func (f *fakeFetcher) ListFolders(_ context.Context, _ *client.Client) ([]string, error) {
	return f.order, nil
}

func (f *fakeFetcher) SelectFolder(_ context.Context, _ *client.Client, folder string) (uint32, error) {
	if err := f.selectErrs[folder]; err != nil {
		return 0, err
	}
	return uint32(len(f.folders[folder])), nil
}

func (f *fakeFetcher) FetchBatch(_ context.Context, _ *client.Client, folder string, limit, offset uint32) ([]*dto.RawMessage, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}

	messages := f.folders[folder]
	total := uint32(len(messages))
	if limit == 0 || offset >= total {
		return []*dto.RawMessage{}, nil
	}
	end := total - offset
	start := uint32(1)
	if end > limit {
		start = end - limit + 1
	}

	batch := make([]*dto.RawMessage, 0, end-start+1)
	for seq := end; seq >= start; seq-- {
		if f.unparsable[seq] {
			continue
		}
		copied := *messages[seq-1]
		batch = append(batch, &copied)
	}
	return batch, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type failingListFetcher struct {
	*fakeFetcher
}

func (f *failingListFetcher) ListFolders(context.Context, *client.Client) ([]string, error) {
	return nil, fmt.Errorf("LIST rejected")
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, _ *dto.RawMessage) models.Analysis {
	return models.UnknownAnalysis()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []enum.SyncEventType
}

func (p *fakePublisher) PublishSyncEvent(_ context.Context, event dto.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.Type)
	return nil
}

func (p *fakePublisher) Close() error {
	return nil
}

func (p *fakePublisher) types() []enum.SyncEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]enum.SyncEventType(nil), p.events...)
}

type fakeStorage struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeStorage) Upload(_ context.Context, key string, _ []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func (s *fakeStorage) Download(context.Context, string) ([]byte, error) {
	return nil, nil
}

func messages(folder string, n int) []*dto.RawMessage {
	out := make([]*dto.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &dto.RawMessage{
			Folder:       folder,
			SeqNum:       uint32(i),
			UID:          uint32(100 + i),
			MessageID:    fmt.Sprintf("<%s-%d@example.org>", folder, i),
			Subject:      fmt.Sprintf("message %d", i),
			FromAddress:  "sender@example.org",
			InternalDate: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
			Raw:          []byte("Subject: test\r\n\r\nbody"),
		})
	}
	return out
}

type testEnv struct {
	service   *SyncService
	accounts  *fakeAccountRepository
	progress  *fakeProgressRepository
	messages  *fakeMessageRepository
	pool      *fakePool
	fetcher   *fakeFetcher
	publisher *fakePublisher
	storage   *fakeStorage
}

func newTestEnv(fetcher *fakeFetcher, accounts ...*models.Account) *testEnv {
	env := &testEnv{
		accounts:  &fakeAccountRepository{accounts: map[string]*models.Account{}},
		progress:  &fakeProgressRepository{records: map[string]*models.SyncProgress{}},
		messages:  &fakeMessageRepository{messages: map[string]*models.Message{}, failOn: map[string]bool{}},
		pool:      &fakePool{},
		fetcher:   fetcher,
		publisher: &fakePublisher{},
		storage:   &fakeStorage{},
	}
	for _, a := range accounts {
		env.accounts.accounts[a.ID] = a
	}

	repos := &repository.Repositories{
		AccountRepository:      env.accounts,
		SyncProgressRepository: env.progress,
		MessageRepository:      env.messages,
	}
	cfg := &config.SyncConfig{DefaultBatchSize: 50, ShutdownTimeout: time.Second, ArchiveRaw: true}
	env.service = NewSyncService(cfg, getLogger(), repos, env.pool, fetcher, fakeAnalyzer{}, env.publisher, env.storage)
	return env
}

func testAccount(id string) *models.Account {
	return &models.Account{
		ID:           id,
		EmailAddress: id + "@example.org",
		ImapServer:   "imap.example.org",
		ImapPort:     993,
		ImapTLS:      true,
		ImapPassword: "secret",
		AuthMethod:   enum.AuthMethodPassword,
		IsActive:     true,
		IsConnected:  true,
	}
}
