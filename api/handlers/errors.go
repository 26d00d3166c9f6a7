package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/tracing"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, mserrors.ErrAccountNotFound),
		errors.Is(err, mserrors.ErrArchiveDisabled),
		errors.Is(err, mserrors.ErrRawMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, mserrors.ErrSyncAlreadyRunning),
		errors.Is(err, mserrors.ErrSyncNotRunning),
		errors.Is(err, mserrors.ErrSyncNotPaused),
		errors.Is(err, mserrors.ErrSyncStopping):
		return http.StatusConflict
	case errors.Is(err, mserrors.ErrInvalidBatchSize),
		errors.Is(err, mserrors.ErrInvalidMaxEmails):
		return http.StatusBadRequest
	case mserrors.IsConnectionError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, span opentracing.Span, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		tracing.TraceErr(span, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
