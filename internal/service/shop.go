package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
)

// ShopDetails is a shop together with its menu
type ShopDetails struct {
	*domain.Shop
	Items []*domain.Item `json:"items"`
}

// ShopService handles shop operations
type ShopService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewShopService creates a new ShopService
func NewShopService(store storage.Store, logger *zap.Logger) *ShopService {
	return &ShopService{
		store:  store,
		logger: logger.Named("shop-service"),
	}
}

// CreateOrEdit creates the owner's shop, or updates it if it exists
func (s *ShopService) CreateOrEdit(ctx context.Context, ownerID string, req *domain.ShopRequest) (*ShopDetails, error) {
	if _, err := requireRole(ctx, s.store, ownerID, domain.RoleOwner); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	city := strings.TrimSpace(req.City)
	if name == "" || city == "" {
		return nil, fmt.Errorf("%w: name and city are required", ErrInvalidInput)
	}

	shop, err := s.store.Shops().GetByOwner(ctx, ownerID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		shop = &domain.Shop{
			ID:      domain.NewID(),
			OwnerID: ownerID,
		}
		applyShopRequest(shop, req)
		if err := s.store.Shops().Create(ctx, shop); err != nil {
			return nil, fmt.Errorf("failed to create shop: %w", err)
		}
		s.logger.Info("Shop created", zap.String("shop_id", shop.ID), zap.String("owner_id", ownerID))

	case err != nil:
		return nil, fmt.Errorf("failed to get shop: %w", err)

	default:
		applyShopRequest(shop, req)
		if err := s.store.Shops().Update(ctx, shop); err != nil {
			return nil, fmt.Errorf("failed to update shop: %w", err)
		}
		s.logger.Info("Shop updated", zap.String("shop_id", shop.ID))
	}

	return s.details(ctx, shop)
}

func applyShopRequest(shop *domain.Shop, req *domain.ShopRequest) {
	shop.Name = strings.TrimSpace(req.Name)
	shop.City = strings.TrimSpace(req.City)
	shop.State = strings.TrimSpace(req.State)
	shop.Address = strings.TrimSpace(req.Address)
	if req.Image != "" {
		shop.Image = req.Image
	}
}

// GetMine returns the owner's shop with its items
func (s *ShopService) GetMine(ctx context.Context, ownerID string) (*ShopDetails, error) {
	shop, err := s.store.Shops().GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: shop", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return s.details(ctx, shop)
}

// GetByCity lists the shops of a city
func (s *ShopService) GetByCity(ctx context.Context, city string) ([]*domain.Shop, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("%w: city required", ErrInvalidInput)
	}

	shops, err := s.store.Shops().GetByCity(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("failed to get shops: %w", err)
	}
	return shops, nil
}

func (s *ShopService) details(ctx context.Context, shop *domain.Shop) (*ShopDetails, error) {
	items, err := s.store.Items().GetByShop(ctx, shop.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	return &ShopDetails{Shop: shop, Items: items}, nil
}
