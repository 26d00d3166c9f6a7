package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailscope/internal/utils"
)

// CustomContextMiddleware attaches the app source and the :id account to the request context
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
