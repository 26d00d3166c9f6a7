package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/tracing"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Exists(ctx context.Context, accountID, messageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Exists")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	return count > 0, nil
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if message.AccountID == "" || message.MessageID == "" {
		return false, ErrInvalidInput
	}

	// A concurrent or repeated fetch of the same message is not an error.
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(message)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, fmt.Errorf("failed to create message: %w", result.Error)
	}

	created := result.RowsAffected > 0
	span.SetTag("duplicate", !created)
	return created, nil
}

func (r *messageRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByAccount")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
