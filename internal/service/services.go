package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/storage"
	"github.com/vingo-app/vingo-backend/pkg/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// Realtime event names
const (
	EventNewOrder               = "newOrder"
	EventUpdateStatus           = "update-status"
	EventNewAssignment          = "newAssignment"
	EventUpdateDeliveryLocation = "updateDeliveryLocation"
)

// Emitter pushes an event to a connected user
type Emitter interface {
	EmitToUser(userID, event string, payload interface{}) error
}

// Presence reports whether a user holds a live realtime connection. An
// Emitter that also implements Presence limits delivery offers to connected
// delivery boys.
type Presence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type nopEmitter struct{}

func (nopEmitter) EmitToUser(string, string, interface{}) error { return nil }

// Services aggregates all application services
type Services struct {
	Auth        *AuthService
	User        *UserService
	Shop        *ShopService
	Item        *ItemService
	Order       *OrderService
	Revocations *TokenRevocations
}

// NewServices creates a new Services instance. emitter may be nil when no
// realtime delivery is wanted.
func NewServices(store storage.Store, emitter Emitter, cfg *config.Config, logger *zap.Logger) *Services {
	if emitter == nil {
		emitter = nopEmitter{}
	}

	revocations := NewTokenRevocations(time.Duration(cfg.JWT.RevocationCleanupSeconds)*time.Second, logger)

	return &Services{
		Auth:        NewAuthService(store, revocations, cfg, logger),
		User:        NewUserService(store, emitter, logger),
		Shop:        NewShopService(store, logger),
		Item:        NewItemService(store, logger),
		Order:       NewOrderService(store, emitter, cfg, logger),
		Revocations: revocations,
	}
}

// Start starts background workers
func (s *Services) Start() {
	s.Revocations.Start()
}

// Stop gracefully stops background workers
func (s *Services) Stop() {
	s.Revocations.Stop()
}

// notify emits an event; delivery failures are logged and ignored
func notify(emitter Emitter, logger *zap.Logger, userID, event string, payload interface{}) {
	if err := emitter.EmitToUser(userID, event, payload); err != nil {
		logger.Debug("Realtime event not delivered",
			zap.String("event", event),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
