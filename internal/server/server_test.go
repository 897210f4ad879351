package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/api"
	"github.com/vingo-app/vingo-backend/internal/realtime"
	"github.com/vingo-app/vingo-backend/pkg/config"
	"github.com/vingo-app/vingo-backend/pkg/middleware"
)

const allowedOrigin = "https://app.vingo.test"

// recordingProvider answers every request under its prefix with its name
type recordingProvider struct {
	name   string
	prefix string

	mu   sync.Mutex
	hits int
}

func (p *recordingProvider) Name() string   { return p.name }
func (p *recordingProvider) Prefix() string { return p.prefix }

func (p *recordingProvider) RegisterRoutes(group *gin.RouterGroup) {
	group.Any("/*path", func(c *gin.Context) {
		p.mu.Lock()
		p.hits++
		p.mu.Unlock()
		c.String(http.StatusOK, p.name)
	})
}

func (p *recordingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := zap.NewNop()
	gate := middleware.NewOriginGate([]string{allowedOrigin}, logger)
	m := NewManager(&ServerConfig{
		HTTPAddress: "127.0.0.1",
		HTTPPort:    0,
		CORS: config.CORSConfig{
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:         600,
		},
	}, gate, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func get(t *testing.T, url string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestManager_StartServesLiveness(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, StateInitializing, m.State())
	assert.Empty(t, m.Addr())

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateServing, m.State())
	require.NotEmpty(t, m.Addr())

	resp, body := get(t, "http://"+m.Addr()+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, LivenessMessage, body)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

func TestManager_DependenciesRunOnceBeforeBind(t *testing.T) {
	m := newTestManager(t)

	var calls []string
	m.AddDependency("database", func(ctx context.Context) error {
		calls = append(calls, "database")
		assert.Equal(t, StateInitializing, m.State())
		assert.Empty(t, m.Addr(), "nothing is bound while dependencies initialise")
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	m.AddDependency("presence", func(ctx context.Context) error {
		calls = append(calls, "presence")
		return nil
	})

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, []string{"database", "presence"}, calls)

	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, []string{"database", "presence"}, calls, "a second Start runs nothing")
}

func TestManager_DependencyFailureBindsNothing(t *testing.T) {
	m := newTestManager(t)
	provider := &recordingProvider{name: "order", prefix: "/api/order"}
	m.AddProvider(provider)

	boom := errors.New("connection refused")
	secondCalled := false
	m.AddDependency("database", func(ctx context.Context) error { return boom })
	m.AddDependency("presence", func(ctx context.Context) error {
		secondCalled = true
		return nil
	})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "database")
	assert.Equal(t, StateFailed, m.State())
	assert.Empty(t, m.Addr())
	assert.Nil(t, m.Handler())
	assert.False(t, secondCalled)
}

func TestManager_BindFailure(t *testing.T) {
	first := newTestManager(t)
	require.NoError(t, first.Start(context.Background()))

	second := newTestManager(t)
	second.cfg.HTTPPort = first.listener.Addr().(*net.TCPAddr).Port
	err := second.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, second.State())
	assert.Empty(t, second.Addr())
}

func TestManager_RejectsOverlappingPrefixes(t *testing.T) {
	m := newTestManager(t)
	m.AddProvider(&recordingProvider{name: "order", prefix: "/api/order"})
	m.AddProvider(&recordingProvider{name: "orders-admin", prefix: "/api/order/admin"})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
	assert.Equal(t, StateFailed, m.State())
	assert.Empty(t, m.Addr())
}

func TestManager_PrefixExclusivity(t *testing.T) {
	m := newTestManager(t)
	names := []string{"auth", "user", "shop", "item", "order"}
	providers := make(map[string]*recordingProvider, len(names))
	for _, n := range names {
		p := &recordingProvider{name: n, prefix: "/api/" + n}
		providers[n] = p
		m.AddProvider(p)
	}
	require.NoError(t, m.Start(context.Background()))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/order/place-order", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order", w.Body.String())

	assert.Equal(t, 1, providers["order"].count())
	for _, n := range []string{"auth", "user", "shop", "item"} {
		assert.Zero(t, providers[n].count(), n)
	}

	w = httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "a shared string prefix is not a path prefix")
}

func TestManager_OriginGate(t *testing.T) {
	m := newTestManager(t)
	m.AddProvider(&recordingProvider{name: "shop", prefix: "/api/shop"})
	require.NoError(t, m.Start(context.Background()))
	h := m.Handler()

	// Allowed origin is echoed with credentials
	req := httptest.NewRequest(http.MethodGet, "/api/shop/get-my", nil)
	req.Header.Set("Origin", allowedOrigin)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, allowedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	// No Origin header passes through
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Disallowed origin is refused without CORS headers
	req = httptest.NewRequest(http.MethodGet, "/api/shop/get-my", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	// Preflight from an allowed origin
	req = httptest.NewRequest(http.MethodOptions, "/api/shop/create-edit", nil)
	req.Header.Set("Origin", allowedOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, allowedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestManager_StatusEndpoints(t *testing.T) {
	m := newTestManager(t)
	m.SetOnlineCounter(func() int { return 3 })
	require.NoError(t, m.Start(context.Background()))

	for _, path := range []string{"/health", "/status"} {
		resp, body := get(t, "http://"+m.Addr()+path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status api.StatusResponse
		require.NoError(t, json.Unmarshal([]byte(body), &status))
		assert.Equal(t, "ok", status.Status)
		assert.Equal(t, ServiceName, status.Service)
		assert.Equal(t, string(StateServing), status.State)
		assert.Equal(t, 3, status.OnlineUsers)
		assert.Equal(t, api.CurrentAPIVersion, status.APIVersion)
	}
}

type staticTokens map[string]string

func (s staticTokens) ValidateToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func TestManager_RealtimeSharesListener(t *testing.T) {
	logger := zap.NewNop()
	m := newTestManager(t)

	hub := realtime.NewHub(realtime.Options{CheckOrigin: middleware.CheckOrigin(m.gate)},
		staticTokens{"tok": "alice"}, realtime.NewMemoryPresenceStore(), logger)
	t.Cleanup(func() { _ = hub.Close() })

	m.AddProvider(&recordingProvider{name: "order", prefix: "/api/order"})
	m.AddProvider(NewRealtimeProvider("/ws", hub))
	m.SetOnlineCounter(hub.OnlineCount)
	require.NoError(t, m.Start(context.Background()))

	url := "ws://" + m.Addr() + "/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", allowedOrigin)
	header.Set("Authorization", "Bearer tok")
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, realtime.EventIdentified, env.Event)
	assert.Equal(t, 1, hub.OnlineCount())

	// Other methods reach the hub and are refused there
	req, err := http.NewRequest(http.MethodDelete, "http://"+m.Addr()+"/ws", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestManager_Shutdown(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start(context.Background()))
	addr := m.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, StateStopped, m.State())

	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestAPIProviders(t *testing.T) {
	providers := APIProviders(nil, func(c *gin.Context) {}, nil)
	prefixes := make([]string, 0, len(providers))
	for _, p := range providers {
		prefixes = append(prefixes, p.Prefix())
	}
	assert.Equal(t, []string{"/api/auth", "/api/user", "/api/shop", "/api/item", "/api/order"}, prefixes)
	assert.NoError(t, checkPrefixes(append(providers, NewRealtimeProvider("/ws", http.NotFoundHandler()))))
}
