package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailscope/interfaces"
)

// HealthCheck reports liveness together with IMAP pool usage
func HealthCheck(pool interfaces.ConnectionPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"pool":   pool.Stats(),
		})
	}
}
