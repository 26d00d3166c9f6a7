package syncer

import (
	"sync"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/models"
)

// syncRun is the in-memory state of one account's active sync. Its progress is
// written by the run goroutine and by pause/stop, always under mutex.
type syncRun struct {
	mutex     sync.Mutex
	progress  *models.SyncProgress
	requested enum.SyncStatus

	account   *models.Account
	client    *client.Client
	folders   []string
	batchSize int
	maxEmails int

	// fetched counts messages taken from the server in this segment, against maxEmails
	fetched int

	segmentStart     time.Time
	segmentProcessed int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newSyncRun(account *models.Account, progress *models.SyncProgress) *syncRun {
	return &syncRun{
		account:          account,
		progress:         progress,
		segmentStart:     time.Now(),
		segmentProcessed: progress.ProcessedEmails,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// request records why the run must end and wakes it at the next batch boundary.
// A stop overrides an earlier pause; a pause never overrides a stop.
func (r *syncRun) request(status enum.SyncStatus) {
	if r.requested == "" || status == enum.SyncStatusIdle {
		r.requested = status
	}
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *syncRun) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *syncRun) snapshot() *models.SyncProgress {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.progress.Clone()
}

// remaining returns how many more messages the run may fetch, or -1 when uncapped.
func (r *syncRun) remaining() int {
	if r.maxEmails <= 0 {
		return -1
	}
	left := r.maxEmails - r.fetched
	if left < 0 {
		return 0
	}
	return left
}

func (r *syncRun) throughput() float64 {
	elapsed := time.Since(r.segmentStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.progress.ProcessedEmails-r.segmentProcessed) / elapsed
}

func recomputeTotal(p *models.SyncProgress) {
	var total int64
	for _, fp := range p.FolderProgress {
		if fp != nil {
			total += fp.Total
		}
	}
	p.TotalEmails = total
}
