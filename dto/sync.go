package dto

import (
	"time"

	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/models"
)

type SyncParams struct {
	BatchSize int      `json:"batchSize"`
	MaxEmails int      `json:"maxEmails"`
	Folders   []string `json:"folders"`
}

type SyncStartResult struct {
	Progress *models.SyncProgress `json:"progress,omitempty"`
	Error    string               `json:"error,omitempty"`
}

type SyncEvent struct {
	Type            enum.SyncEventType `json:"type"`
	AccountID       string             `json:"accountId"`
	RunID           string             `json:"runId"`
	Status          enum.SyncStatus    `json:"status"`
	ProcessedEmails int64              `json:"processedEmails"`
	FailedEmails    int64              `json:"failedEmails"`
	ErrorMessage    string             `json:"errorMessage,omitempty"`
	OccurredAt      time.Time          `json:"occurredAt"`
}
