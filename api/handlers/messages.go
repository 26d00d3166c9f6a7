package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
)

// GetRawMessage streams the archived RFC 822 source of a stored message
func GetRawMessage(storage interfaces.StorageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "GetRawMessage", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if storage == nil {
			respondError(c, span, errors.ErrArchiveDisabled)
			return
		}

		messageID := c.Param("messageId")
		tracing.TagEntity(span, messageID)

		raw, err := storage.Download(ctx, utils.RawMessageKey(c.Param("id"), messageID))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.Data(http.StatusOK, "message/rfc822", raw)
	}
}
