package interfaces

import (
	"context"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/models"
)

type MessageAnalyzer interface {
	Analyze(ctx context.Context, message *dto.RawMessage) models.Analysis
}
