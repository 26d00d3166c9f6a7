package enum

type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "IDLE"
	SyncStatusRunning   SyncStatus = "RUNNING"
	SyncStatusPaused    SyncStatus = "PAUSED"
	SyncStatusCompleted SyncStatus = "COMPLETED"
	SyncStatusError     SyncStatus = "ERROR"
)

func (s SyncStatus) String() string {
	return string(s)
}

// IsTerminal reports whether a run in this status has finished for good.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusError || s == SyncStatusIdle
}

type SyncEventType string

const (
	SyncEventStarted   SyncEventType = "sync.started"
	SyncEventPaused    SyncEventType = "sync.paused"
	SyncEventResumed   SyncEventType = "sync.resumed"
	SyncEventStopped   SyncEventType = "sync.stopped"
	SyncEventCompleted SyncEventType = "sync.completed"
	SyncEventFailed    SyncEventType = "sync.failed"
)

func (t SyncEventType) String() string {
	return string(t)
}
