package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader is the opaque caller-supplied key attached to every
// mutating call.
const IdempotencyKeyHeader = "Idempotency-Key"

// RequireIdempotencyKey rejects mutating requests that lack an
// Idempotency-Key header and stashes the key in the Gin context for the
// handlers.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			GetLoggerFromCtx(c.Request.Context()).Warn("Idempotency key missing")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header required"})
			return
		}
		c.Set(string(idempotencyKeyKey), key)
		c.Next()
	}
}
