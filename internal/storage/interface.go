package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vingo-app/vingo-backend/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrConflict reports a failed precondition on a conditional write
	ErrConflict = errors.New("conflict")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create creates a new user; the email must be unique
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update replaces a user
	Update(ctx context.Context, user *domain.User) error

	// UpdateLocation sets only the user's location
	UpdateLocation(ctx context.Context, id string, location domain.GeoPoint) error

	// FindNearby returns users with the given role within maxMeters of point,
	// nearest first
	FindNearby(ctx context.Context, role domain.Role, point domain.GeoPoint, maxMeters float64) ([]*domain.User, error)
}

// ShopStore defines the interface for shop storage operations
type ShopStore interface {
	Create(ctx context.Context, shop *domain.Shop) error
	GetByID(ctx context.Context, id string) (*domain.Shop, error)
	// GetByOwner returns the shop owned by ownerID
	GetByOwner(ctx context.Context, ownerID string) (*domain.Shop, error)
	// GetByCity matches the city case-insensitively
	GetByCity(ctx context.Context, city string) ([]*domain.Shop, error)
	Update(ctx context.Context, shop *domain.Shop) error
}

// ItemStore defines the interface for menu item storage operations
type ItemStore interface {
	Create(ctx context.Context, item *domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	Update(ctx context.Context, item *domain.Item) error
	Delete(ctx context.Context, id string) error
	GetByShop(ctx context.Context, shopID string) ([]*domain.Item, error)
	GetByShops(ctx context.Context, shopIDs []string) ([]*domain.Item, error)
	// Search matches query case-insensitively against name or category,
	// restricted to the given shops
	Search(ctx context.Context, shopIDs []string, query string) ([]*domain.Item, error)
}

// ShopOrderUpdate is a conditional write to one shop order of an order.
// The Expect fields are checked and the remaining non-nil fields written in
// one atomic step; other shop orders of the same order are left untouched.
type ShopOrderUpdate struct {
	// ExpectStatus, when set, must equal the current status
	ExpectStatus domain.OrderStatus
	// ExpectAssignmentID, when non-nil, must equal the current assignment ID
	// ("" means not yet assigned)
	ExpectAssignmentID *string

	Status              domain.OrderStatus // empty leaves the status unchanged
	AssignmentID        *string
	AssignedDeliveryBoy *string
	DeliveredAt         *time.Time
}

// Matches reports whether so satisfies the preconditions of u
func (u *ShopOrderUpdate) Matches(so *domain.ShopOrder) bool {
	if u.ExpectStatus != "" && so.Status != u.ExpectStatus {
		return false
	}
	if u.ExpectAssignmentID != nil && so.AssignmentID != *u.ExpectAssignmentID {
		return false
	}
	return true
}

// Apply writes the changes of u to so
func (u *ShopOrderUpdate) Apply(so *domain.ShopOrder) {
	if u.Status != "" {
		so.Status = u.Status
	}
	if u.AssignmentID != nil {
		so.AssignmentID = *u.AssignmentID
	}
	if u.AssignedDeliveryBoy != nil {
		so.AssignedDeliveryBoy = *u.AssignedDeliveryBoy
	}
	if u.DeliveredAt != nil {
		t := *u.DeliveredAt
		so.DeliveredAt = &t
	}
}

// OrderStore defines the interface for order storage operations
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	// UpdateShopOrder applies update to the shop order of shopID and returns
	// the whole order as stored afterwards. Returns ErrNotFound when the order
	// or shop order does not exist and ErrConflict when a precondition fails.
	UpdateShopOrder(ctx context.Context, orderID, shopID string, update ShopOrderUpdate) (*domain.Order, error)
	// GetByUser returns a customer's orders, newest first
	GetByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	// GetByOwner returns orders containing a shop order for ownerID, newest first
	GetByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	// GetByDeliveryBoy returns orders with a shop order assigned to deliveryBoyID, newest first
	GetByDeliveryBoy(ctx context.Context, deliveryBoyID string) ([]*domain.Order, error)
}

// AssignmentStore defines the interface for delivery assignment storage
type AssignmentStore interface {
	Create(ctx context.Context, assignment *domain.DeliveryAssignment) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryAssignment, error)
	Update(ctx context.Context, assignment *domain.DeliveryAssignment) error
	// Claim atomically moves a broadcasted assignment to assigned for
	// deliveryBoyID. Returns ErrNotFound when it is no longer claimable and
	// ErrConflict when deliveryBoyID already holds an assigned assignment.
	Claim(ctx context.Context, id, deliveryBoyID string) (*domain.DeliveryAssignment, error)
	// GetBroadcastedTo returns open assignments offered to deliveryBoyID
	GetBroadcastedTo(ctx context.Context, deliveryBoyID string) ([]*domain.DeliveryAssignment, error)
	// GetActiveByDeliveryBoy returns the assignment currently held by deliveryBoyID
	GetActiveByDeliveryBoy(ctx context.Context, deliveryBoyID string) (*domain.DeliveryAssignment, error)
	// ActiveDeliveryBoys returns the IDs of delivery boys holding an assignment
	ActiveDeliveryBoys(ctx context.Context) ([]string, error)
}

// Store aggregates all storage interfaces
type Store interface {
	Users() UserStore
	Shops() ShopStore
	Items() ItemStore
	Orders() OrderStore
	Assignments() AssignmentStore
	Close() error
	Ping(ctx context.Context) error
}
