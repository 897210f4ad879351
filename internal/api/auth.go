package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/pkg/middleware"
)

// SignUp registers a user and starts a cookie session
func (h *Handlers) SignUp(c *gin.Context) {
	var req domain.SignUpRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.services.Auth.SignUp(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Failed to sign up")
		return
	}

	h.setSessionCookie(c, token)
	c.JSON(http.StatusCreated, user)
}

// SignIn authenticates with email and password and starts a cookie session
func (h *Handlers) SignIn(c *gin.Context) {
	var req domain.SignInRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.services.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, "Failed to sign in")
		return
	}

	h.setSessionCookie(c, token)
	c.JSON(http.StatusOK, user)
}

// SignOut revokes the session token, if any, and clears the cookie
func (h *Handlers) SignOut(c *gin.Context) {
	if token := middleware.RequestToken(c, h.cfg.Cookie.Name); token != "" {
		h.services.Auth.SignOut(token)
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (h *Handlers) setSessionCookie(c *gin.Context, token string) {
	maxAge := int(h.services.Auth.TokenTTL().Seconds())
	if days := h.cfg.Cookie.MaxAgeDays; days > 0 {
		maxAge = days * 24 * 60 * 60
	}
	c.SetSameSite(sameSite(h.cfg.Cookie.SameSite))
	c.SetCookie(h.cfg.Cookie.Name, token, maxAge, "/", "", h.cfg.Cookie.Secure, true)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(sameSite(h.cfg.Cookie.SameSite))
	c.SetCookie(h.cfg.Cookie.Name, "", -1, "/", "", h.cfg.Cookie.Secure, true)
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
