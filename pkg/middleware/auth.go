package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenValidator resolves a session token to a user ID
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// RequestToken extracts the session token from the named cookie or from an
// "Authorization: Bearer" header. The cookie wins when both are present.
func RequestToken(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// AuthMiddleware validates the session token and sets "user_id" in the context
func AuthMiddleware(tokens TokenValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := RequestToken(c, cookieName)
		if tokenString == "" {
			c.JSON(401, gin.H{"error": "Token required"})
			c.Abort()
			return
		}

		userID, err := tokens.ValidateToken(tokenString)
		if err != nil || userID == "" {
			c.JSON(401, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("token", tokenString)

		c.Next()
	}
}

// Logger returns a gin middleware for logging
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
