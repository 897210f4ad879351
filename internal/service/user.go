package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
)

// DeliveryLocation is pushed to customers while their order is on the way
type DeliveryLocation struct {
	DeliveryBoyID string  `json:"deliveryBoyId"`
	OrderID       string  `json:"orderId"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// UserService handles user profile operations
type UserService struct {
	store   storage.Store
	emitter Emitter
	logger  *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(store storage.Store, emitter Emitter, logger *zap.Logger) *UserService {
	return &UserService{
		store:   store,
		emitter: emitter,
		logger:  logger.Named("user-service"),
	}
}

// GetCurrent returns the signed-in user
func (s *UserService) GetCurrent(ctx context.Context, userID string) (*domain.User, error) {
	return getUser(ctx, s.store, userID)
}

// UpdateLocation stores the user's position. A delivery boy's position is
// forwarded to the customer of the order being delivered.
func (s *UserService) UpdateLocation(ctx context.Context, userID string, lat, lon float64) error {
	point, err := domain.NewGeoPoint(lat, lon)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := getUser(ctx, s.store, userID)
	if err != nil {
		return err
	}

	if err := s.store.Users().UpdateLocation(ctx, userID, point); err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}

	if user.Role != domain.RoleDeliveryBoy {
		return nil
	}

	assignment, err := s.store.Assignments().GetActiveByDeliveryBoy(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get active assignment: %w", err)
	}

	order, err := s.store.Orders().GetByID(ctx, assignment.OrderID)
	if err != nil {
		s.logger.Warn("Assignment references missing order",
			zap.String("assignment_id", assignment.ID),
			zap.String("order_id", assignment.OrderID),
			zap.Error(err))
		return nil
	}

	notify(s.emitter, s.logger, order.UserID, EventUpdateDeliveryLocation, DeliveryLocation{
		DeliveryBoyID: userID,
		OrderID:       order.ID,
		Latitude:      lat,
		Longitude:     lon,
	})
	return nil
}

// getUser maps a missing user to ErrNotFound
func getUser(ctx context.Context, store storage.Store, userID string) (*domain.User, error) {
	user, err := store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// requireRole loads the user and checks the role
func requireRole(ctx context.Context, store storage.Store, userID string, role domain.Role) (*domain.User, error) {
	user, err := getUser(ctx, store, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != role {
		return nil, fmt.Errorf("%w: requires role %s", ErrForbidden, role)
	}
	return user, nil
}
