package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/customeros/mailscope/api/errors"
	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/tracing"
)

// StartSync starts a sync run for the account in the path
func StartSync(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "StartSync", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var params dto.SyncParams
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&params); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		tracing.LogObjectAsJson(span, "params", params)

		progress, err := syncService.Start(ctx, c.Param("id"), params)
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusAccepted, progress)
	}
}

func PauseSync(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "PauseSync", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		progress, err := syncService.Pause(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, progress)
	}
}

func ResumeSync(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ResumeSync", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		progress, err := syncService.Resume(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusAccepted, progress)
	}
}

// StopSync is idempotent: stopping an idle account returns its idle progress
func StopSync(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "StopSync", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		progress, err := syncService.Stop(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, progress)
	}
}

func GetSyncStatus(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetSyncStatus", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		progress, err := syncService.Status(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, progress)
	}
}

// StartAllSyncs starts every active account and reports a result per account.
// Per-account failures do not fail the request.
func StartAllSyncs(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "StartAllSyncs", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		results := syncService.StartAll(ctx)

		failures := apierrors.NewMultiErrors()
		for accountID, result := range results {
			if result.Error != "" {
				failures.Add(accountID, result.Error, nil)
			}
		}
		if failures.HasErrors() {
			span.LogKV("failed_accounts", failures.Error())
		}
		span.SetTag("accounts", len(results))

		c.JSON(http.StatusOK, gin.H{
			"results": results,
			"started": len(results) - failures.Count(),
			"failed":  failures.Count(),
		})
	}
}
