package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/api"
	"github.com/vingo-app/vingo-backend/internal/backend"
	"github.com/vingo-app/vingo-backend/internal/realtime"
	"github.com/vingo-app/vingo-backend/internal/server"
	"github.com/vingo-app/vingo-backend/internal/service"
	"github.com/vingo-app/vingo-backend/pkg/config"
	"github.com/vingo-app/vingo-backend/pkg/logging"
	"github.com/vingo-app/vingo-backend/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile    = flag.String("env-file", ".env", "Path to a dotenv file loaded before configuration")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Vingo Backend",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("storage", cfg.Storage.Type),
		zap.Strings("allowed_origins", cfg.Server.AllowedOrigins),
	)

	// Storage backend; no I/O until the database dependency runs
	store, err := backend.New(cfg)
	if err != nil {
		logger.Fatal("Failed to create storage backend", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	gate := middleware.NewOriginGate(cfg.Server.AllowedOrigins, logger)

	// The hub validates tokens through the auth service, which needs the hub
	// as its emitter; bridge the cycle with a late-bound validator.
	tokens := &lateTokens{}
	hub := realtime.NewHub(realtime.Options{
		CookieName:   cfg.Cookie.Name,
		SendBuffer:   cfg.Realtime.SendBuffer,
		WriteTimeout: time.Duration(cfg.Realtime.WriteTimeoutSeconds) * time.Second,
		PingInterval: time.Duration(cfg.Realtime.PingIntervalSeconds) * time.Second,
		CheckOrigin:  middleware.CheckOrigin(gate),
	}, tokens, realtime.NewPresenceStore(&cfg.Realtime, logger), logger)

	services := service.NewServices(store, hub, cfg, logger)
	tokens.validator = services.Auth
	services.Start()
	defer services.Stop()

	handlers := api.NewHandlers(services, cfg, logger)
	hub.On("updateLocation", handlers.LocationEvent)

	var limiter *middleware.AuthRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewAuthRateLimiter(cfg.RateLimit, logger)
	}

	mgr := server.NewManager(&server.ServerConfig{
		HTTPAddress:  cfg.Server.Host,
		HTTPPort:     cfg.Server.Port,
		CORS:         cfg.Server.CORS,
		LoggingLevel: cfg.Logging.Level,
	}, gate, logger)

	mgr.AddDependency("database", store.Connect)
	mgr.AddDependency("realtime-presence", hub.Ping)

	for _, p := range server.APIProviders(handlers, middleware.AuthMiddleware(services.Auth, cfg.Cookie.Name), limiter) {
		mgr.AddProvider(p)
	}
	mgr.AddProvider(server.NewRealtimeProvider(cfg.Realtime.Path, hub))
	mgr.SetOnlineCounter(hub.OnlineCount)

	if err := mgr.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := mgr.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := hub.Close(); err != nil {
		logger.Error("Failed to close realtime hub", zap.Error(err))
	}

	logger.Info("Server exited")
}

// lateTokens forwards to a validator assigned after construction
type lateTokens struct {
	validator realtime.TokenValidator
}

func (l *lateTokens) ValidateToken(token string) (string, error) {
	return l.validator.ValidateToken(token)
}
