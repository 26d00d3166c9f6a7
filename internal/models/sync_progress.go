package models

import (
	"time"

	"github.com/customeros/mailscope/internal/enum"
)

type SyncProgress struct {
	ID                     string            `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AccountID              string            `gorm:"column:account_id;type:varchar(50);uniqueIndex;not null" json:"accountId"`
	RunID                  string            `gorm:"column:run_id;type:varchar(50)" json:"runId"`
	Status                 enum.SyncStatus   `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	TotalEmails            int64             `gorm:"column:total_emails;not null;default:0" json:"totalEmails"`
	ProcessedEmails        int64             `gorm:"column:processed_emails;not null;default:0" json:"processedEmails"`
	FailedEmails           int64             `gorm:"column:failed_emails;not null;default:0" json:"failedEmails"`
	CurrentFolder          string            `gorm:"column:current_folder;type:varchar(255)" json:"currentFolder"`
	LastProcessedMessageID string            `gorm:"column:last_processed_message_id;type:varchar(998)" json:"lastProcessedMessageId"`
	FolderProgress         FolderProgressMap `gorm:"column:folder_progress;type:jsonb" json:"folderProgress"`
	EmailsPerSecond        float64           `gorm:"column:emails_per_second;not null;default:0" json:"emailsPerSecond"`
	StartedAt              *time.Time        `gorm:"column:started_at;type:timestamp" json:"startedAt"`
	CompletedAt            *time.Time        `gorm:"column:completed_at;type:timestamp" json:"completedAt"`
	ErrorMessage           string            `gorm:"column:error_message;type:text" json:"errorMessage"`
	CreatedAt              time.Time         `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt              time.Time         `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SyncProgress) TableName() string {
	return "sync_progress"
}

type FolderProgress struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// NewIdleSyncProgress is what status reports for an account that never synced.
func NewIdleSyncProgress(accountID string) *SyncProgress {
	return &SyncProgress{
		AccountID:      accountID,
		Status:         enum.SyncStatusIdle,
		FolderProgress: FolderProgressMap{},
	}
}

// Folder returns the breakdown for a folder, creating it on first use.
func (p *SyncProgress) Folder(name string) *FolderProgress {
	if p.FolderProgress == nil {
		p.FolderProgress = FolderProgressMap{}
	}
	fp, ok := p.FolderProgress[name]
	if !ok || fp == nil {
		fp = &FolderProgress{}
		p.FolderProgress[name] = fp
	}
	return fp
}

// Clone returns a deep copy that is safe to hand out while a run keeps mutating p.
func (p *SyncProgress) Clone() *SyncProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.FolderProgress = make(FolderProgressMap, len(p.FolderProgress))
	for k, v := range p.FolderProgress {
		if v == nil {
			continue
		}
		fp := *v
		c.FolderProgress[k] = &fp
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		c.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
