package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/service"
	"github.com/vingo-app/vingo-backend/pkg/config"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services *service.Services, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		cfg:      cfg,
		logger:   logger.Named("handlers"),
	}
}

// userID returns the authenticated user set by the auth middleware
func userID(c *gin.Context) string {
	return c.GetString("user_id")
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserExists), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal errors are logged and
// replaced by msg so storage details never reach the client.
func (h *Handlers) respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("path", c.Request.URL.Path),
			zap.String("user_id", userID(c)),
			zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON binds the request body, answering 400 on failure
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
