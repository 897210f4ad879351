package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vingo-app/vingo-backend/pkg/config"
)

const allowedOrigin = "https://app.vingo.test"

func testCORSConfig() config.CORSConfig {
	return config.CORSConfig{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:         600,
	}
}

func newGatedRouter(gate *OriginGate) *gin.Engine {
	router := gin.New()
	router.Use(CORS(gate, testCORSConfig()))
	router.GET("/api/shop/get-my", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestOriginGate_Allowed(t *testing.T) {
	gate := NewOriginGate([]string{allowedOrigin, "http://localhost:5173"}, zap.NewNop())

	assert.True(t, gate.Allowed(""), "requests without Origin are admitted")
	assert.True(t, gate.Allowed(allowedOrigin))
	assert.True(t, gate.Allowed("http://localhost:5173"))

	// Exact match only
	assert.False(t, gate.Allowed("https://app.vingo.test/"))
	assert.False(t, gate.Allowed("http://app.vingo.test"))
	assert.False(t, gate.Allowed("https://APP.vingo.test"))
	assert.False(t, gate.Allowed("https://evil.app.vingo.test"))
	assert.False(t, gate.Allowed("null"))
}

func TestOriginGate_LogsBlockedOrigin(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gate := NewOriginGate([]string{allowedOrigin}, zap.New(core))

	gate.Allowed(allowedOrigin)
	assert.Equal(t, 0, logs.Len())

	gate.Allowed("https://evil.example")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Blocked origin", entry.Message)
	assert.Equal(t, "https://evil.example", entry.ContextMap()["origin"])
}

func TestCORS_AllowedOriginGetsCredentialedHeaders(t *testing.T) {
	router := newGatedRouter(NewOriginGate([]string{allowedOrigin}, zap.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/api/shop/get-my", nil)
	req.Header.Set("Origin", allowedOrigin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, allowedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	router := newGatedRouter(NewOriginGate([]string{allowedOrigin}, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shop/get-my", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOriginRejected(t *testing.T) {
	router := newGatedRouter(NewOriginGate([]string{allowedOrigin}, zap.NewNop()))

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		req := httptest.NewRequest(method, "/api/shop/get-my", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code, method)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), method)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"), method)
		assert.Empty(t, w.Body.String(), method)
	}
}

func TestCORS_SameHostOriginStillGated(t *testing.T) {
	router := newGatedRouter(NewOriginGate([]string{"https://app.example.com"}, zap.NewNop()))

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		req := httptest.NewRequest(method, "http://evil.example:8000/api/shop/get-my", nil)
		req.Host = "evil.example:8000"
		req.Header.Set("Origin", "http://evil.example:8000")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code, method)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), method)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"), method)
	}
}

func TestCORS_Preflight(t *testing.T) {
	router := newGatedRouter(NewOriginGate([]string{allowedOrigin}, zap.NewNop()))

	req := httptest.NewRequest(http.MethodOptions, "/api/shop/get-my", nil)
	req.Header.Set("Origin", allowedOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, allowedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCheckOrigin(t *testing.T) {
	check := CheckOrigin(NewOriginGate([]string{allowedOrigin}, zap.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", allowedOrigin)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
