package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
)

type syncProgressRepository struct {
	db *gorm.DB
}

func NewSyncProgressRepository(db *gorm.DB) interfaces.SyncProgressRepository {
	return &syncProgressRepository{db: db}
}

// GetByAccountID returns nil, nil when the account never synced.
func (r *syncProgressRepository) GetByAccountID(ctx context.Context, accountID string) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncProgressRepository.GetByAccountID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	var progress models.SyncProgress
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get sync progress: %w", err)
	}
	return &progress, nil
}

// Save upserts the single progress row of the account.
func (r *syncProgressRepository) Save(ctx context.Context, progress *models.SyncProgress) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncProgressRepository.Save")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, progress.AccountID)
	span.LogKV("status", progress.Status.String())

	if progress.AccountID == "" {
		return ErrInvalidInput
	}
	progress.UpdatedAt = utils.Now()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"run_id",
				"status",
				"total_emails",
				"processed_emails",
				"failed_emails",
				"current_folder",
				"last_processed_message_id",
				"folder_progress",
				"emails_per_second",
				"started_at",
				"completed_at",
				"error_message",
				"updated_at",
			}),
		}).
		Create(progress).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save sync progress: %w", err)
	}
	return nil
}

func (r *syncProgressRepository) GetByStatus(ctx context.Context, status string) ([]*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncProgressRepository.GetByStatus")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var records []*models.SyncProgress
	err := r.db.WithContext(ctx).Where("status = ?", status).Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get sync progress by status: %w", err)
	}
	return records, nil
}
