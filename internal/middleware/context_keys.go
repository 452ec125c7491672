package middleware

import "github.com/gin-gonic/gin"

// contextKey is a private key type to avoid context collisions.
type contextKey string

const (
	loggerCtxKey      = contextKey("logger")
	userIDKey         = contextKey("userID")
	idempotencyKeyKey = contextKey("idempotencyKey")
)

// GetUserIDFromContext retrieves the authenticated user ID from the Gin context.
// It returns the user ID and a boolean indicating if it was found.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userIDVal, exists := c.Get(string(userIDKey))
	if !exists {
		// check the request context as well
		if v := c.Request.Context().Value(userIDKey); v != nil {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
		return "", false
	}
	userID, ok := userIDVal.(string)
	if !ok {
		return "", false
	}
	return userID, true
}

// GetIdempotencyKeyFromContext retrieves the caller-supplied idempotency key
// extracted by IdempotencyKeyMiddleware.
func GetIdempotencyKeyFromContext(c *gin.Context) string {
	if v, exists := c.Get(string(idempotencyKeyKey)); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
