// Package server provides HTTP server management for the Vingo backend.
// It separates the concept of "routes" from "servers": route providers
// contribute route groups, the Manager brings up dependencies, mounts the
// groups on one router and binds the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/api"
	"github.com/vingo-app/vingo-backend/pkg/config"
	"github.com/vingo-app/vingo-backend/pkg/middleware"
)

// ServiceName is reported by the status endpoints
const ServiceName = "vingo-backend"

// LivenessMessage is the plaintext body of GET /
const LivenessMessage = "Vingo Backend is running"

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("server already started")

// State is the readiness state of the Manager
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateServing      State = "serving"
	StateFailed       State = "failed"
	StateStopped      State = "stopped"
)

// RouteProvider contributes the routes of one route group.
type RouteProvider interface {
	// Name returns the group name for logging
	Name() string

	// Prefix returns the path prefix the group is mounted under.
	// Prefixes of different providers must not overlap.
	Prefix() string

	// RegisterRoutes adds the group's routes relative to the prefix
	RegisterRoutes(group *gin.RouterGroup)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPAddress string
	HTTPPort    int

	CORS         config.CORSConfig
	LoggingLevel string

	// DependencyTimeout bounds each dependency initialiser
	DependencyTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPAddress:       "0.0.0.0",
		HTTPPort:          8000,
		DependencyTimeout: 30 * time.Second,
	}
}

type dependency struct {
	name string
	init func(ctx context.Context) error
}

// Manager sequences startup: every dependency is initialised exactly once
// before the router is built and the listener is bound.
type Manager struct {
	cfg    *ServerConfig
	gate   *middleware.OriginGate
	logger *zap.Logger

	providers    []RouteProvider
	dependencies []dependency
	onlineUsers  func() int

	mu         sync.RWMutex
	state      State
	started    bool
	router     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
}

// NewManager creates a new server manager
func NewManager(cfg *ServerConfig, gate *middleware.OriginGate, logger *zap.Logger) *Manager {
	if cfg.DependencyTimeout <= 0 {
		cfg.DependencyTimeout = 30 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		gate:   gate,
		logger: logger.Named("server"),
		state:  StateInitializing,
	}
}

// AddProvider adds a RouteProvider. Call before Start.
func (m *Manager) AddProvider(p RouteProvider) {
	m.providers = append(m.providers, p)
	m.logger.Debug("Added route provider",
		zap.String("name", p.Name()),
		zap.String("prefix", p.Prefix()))
}

// AddDependency registers an initialiser that must succeed before the
// listener is bound. Dependencies run in registration order.
func (m *Manager) AddDependency(name string, init func(ctx context.Context) error) {
	m.dependencies = append(m.dependencies, dependency{name: name, init: init})
}

// SetOnlineCounter sets the source of the online user count in /status
func (m *Manager) SetOnlineCounter(fn func() int) {
	m.onlineUsers = fn
}

// State returns the current readiness state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Addr returns the bound listener address, or "" before Serving
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Handler returns the router once it has been built
func (m *Manager) Handler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.router
}

// Start initialises dependencies, builds the router and starts serving in
// the background. On failure the Manager is left Failed with nothing bound.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.state = StateInitializing
	m.mu.Unlock()

	for _, dep := range m.dependencies {
		depCtx, cancel := context.WithTimeout(ctx, m.cfg.DependencyTimeout)
		err := dep.init(depCtx)
		cancel()
		if err != nil {
			m.setState(StateFailed)
			return fmt.Errorf("dependency %s: %w", dep.name, err)
		}
		m.logger.Info("Dependency initialized", zap.String("name", dep.name))
	}

	if m.cfg.LoggingLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := m.buildRouter()
	if err != nil {
		m.setState(StateFailed)
		return err
	}

	m.mu.Lock()
	m.router = router
	m.state = StateReady
	m.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", m.cfg.HTTPAddress, m.cfg.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	m.mu.Lock()
	m.listener = listener
	m.httpServer = srv
	m.state = StateServing
	m.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	m.logger.Info("Server started",
		zap.String("address", listener.Addr().String()),
		zap.Int("port", listener.Addr().(*net.TCPAddr).Port))
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	srv := m.httpServer
	m.mu.RUnlock()

	var err error
	if srv != nil {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("HTTP server shutdown: %w", shutdownErr)
		}
	}
	m.setState(StateStopped)
	return err
}

// buildRouter creates the router with common middleware, the root and status
// endpoints and every provider's group
func (m *Manager) buildRouter() (*gin.Engine, error) {
	if err := checkPrefixes(m.providers); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(m.logger))
	router.Use(middleware.CORS(m.gate, m.cfg.CORS))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, LivenessMessage)
	})
	m.addStatusEndpoints(router)

	for _, p := range m.providers {
		m.logger.Info("Registering routes",
			zap.String("group", p.Name()),
			zap.String("prefix", p.Prefix()))
		p.RegisterRoutes(router.Group(p.Prefix()))
	}
	return router, nil
}

// addStatusEndpoints adds /health and /status routes
func (m *Manager) addStatusEndpoints(router *gin.Engine) {
	handler := func(c *gin.Context) {
		online := 0
		if m.onlineUsers != nil {
			online = m.onlineUsers()
		}
		c.JSON(http.StatusOK, api.StatusResponse{
			Status:       "ok",
			Service:      ServiceName,
			State:        string(m.State()),
			OnlineUsers:  online,
			APIVersion:   api.CurrentAPIVersion,
			Capabilities: api.APICapabilities[api.CurrentAPIVersion],
		})
	}
	router.GET("/health", handler)
	router.GET("/status", handler)
}

// checkPrefixes rejects empty, root or overlapping provider prefixes
func checkPrefixes(providers []RouteProvider) error {
	for i, a := range providers {
		pa := strings.TrimRight(a.Prefix(), "/")
		if !strings.HasPrefix(pa, "/") {
			return fmt.Errorf("route group %s: invalid prefix %q", a.Name(), a.Prefix())
		}
		for _, b := range providers[i+1:] {
			pb := strings.TrimRight(b.Prefix(), "/")
			if pa == pb || strings.HasPrefix(pa, pb+"/") || strings.HasPrefix(pb, pa+"/") {
				return fmt.Errorf("route groups %s and %s overlap (%q, %q)", a.Name(), b.Name(), a.Prefix(), b.Prefix())
			}
		}
	}
	return nil
}
