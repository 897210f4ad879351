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

// ItemService handles menu items
type ItemService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewItemService creates a new ItemService
func NewItemService(store storage.Store, logger *zap.Logger) *ItemService {
	return &ItemService{
		store:  store,
		logger: logger.Named("item-service"),
	}
}

func validateItem(req *domain.ItemRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if !domain.IsValidCategory(req.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, req.Category)
	}
	if req.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if req.FoodType != domain.FoodTypeVeg && req.FoodType != domain.FoodTypeNonVeg {
		return fmt.Errorf("%w: unknown food type %q", ErrInvalidInput, req.FoodType)
	}
	return nil
}

// ownerShop returns the shop of ownerID
func (s *ItemService) ownerShop(ctx context.Context, ownerID string) (*domain.Shop, error) {
	shop, err := s.store.Shops().GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: create a shop first", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return shop, nil
}

// ownedItem loads an item and checks it belongs to ownerID's shop
func (s *ItemService) ownedItem(ctx context.Context, ownerID, itemID string) (*domain.Item, error) {
	shop, err := s.ownerShop(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.ShopID != shop.ID {
		return nil, fmt.Errorf("%w: item belongs to another shop", ErrForbidden)
	}
	return item, nil
}

// Add adds an item to the owner's shop
func (s *ItemService) Add(ctx context.Context, ownerID string, req *domain.ItemRequest) (*domain.Item, error) {
	if err := validateItem(req); err != nil {
		return nil, err
	}
	shop, err := s.ownerShop(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	item := &domain.Item{
		ID:       domain.NewID(),
		Name:     strings.TrimSpace(req.Name),
		Image:    req.Image,
		ShopID:   shop.ID,
		Category: req.Category,
		Price:    req.Price,
		FoodType: req.FoodType,
	}
	if err := s.store.Items().Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.logger.Info("Item added", zap.String("item_id", item.ID), zap.String("shop_id", shop.ID))
	return item, nil
}

// Edit updates an item of the owner's shop
func (s *ItemService) Edit(ctx context.Context, ownerID, itemID string, req *domain.ItemRequest) (*domain.Item, error) {
	if err := validateItem(req); err != nil {
		return nil, err
	}
	item, err := s.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}

	item.Name = strings.TrimSpace(req.Name)
	item.Category = req.Category
	item.Price = req.Price
	item.FoodType = req.FoodType
	if req.Image != "" {
		item.Image = req.Image
	}

	if err := s.store.Items().Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return item, nil
}

// Delete removes an item of the owner's shop
func (s *ItemService) Delete(ctx context.Context, ownerID, itemID string) error {
	if _, err := s.ownedItem(ctx, ownerID, itemID); err != nil {
		return err
	}
	if err := s.store.Items().Delete(ctx, itemID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	s.logger.Info("Item deleted", zap.String("item_id", itemID))
	return nil
}

// Get returns an item by ID
func (s *ItemService) Get(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := s.store.Items().GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: item", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetByCity lists every item sold in a city
func (s *ItemService) GetByCity(ctx context.Context, city string) ([]*domain.Item, error) {
	shopIDs, err := s.cityShopIDs(ctx, city)
	if err != nil {
		return nil, err
	}
	if len(shopIDs) == 0 {
		return []*domain.Item{}, nil
	}

	items, err := s.store.Items().GetByShops(ctx, shopIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	return items, nil
}

// GetByShop returns a shop with its menu
func (s *ItemService) GetByShop(ctx context.Context, shopID string) (*ShopDetails, error) {
	shop, err := s.store.Shops().GetByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: shop", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	items, err := s.store.Items().GetByShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	return &ShopDetails{Shop: shop, Items: items}, nil
}

// Search finds items of a city whose name or category contains query
func (s *ItemService) Search(ctx context.Context, query, city string) ([]*domain.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query required", ErrInvalidInput)
	}

	shopIDs, err := s.cityShopIDs(ctx, city)
	if err != nil {
		return nil, err
	}
	if len(shopIDs) == 0 {
		return []*domain.Item{}, nil
	}

	items, err := s.store.Items().Search(ctx, shopIDs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	return items, nil
}

// Rate adds a 1..5 rating to an item
func (s *ItemService) Rate(ctx context.Context, itemID string, rating int) (*domain.Item, error) {
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := item.Rating.Add(rating); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	// TODO: move to an atomic $inc-based update so concurrent ratings are not lost
	if err := s.store.Items().Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update rating: %w", err)
	}
	return item, nil
}

func (s *ItemService) cityShopIDs(ctx context.Context, city string) ([]string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("%w: city required", ErrInvalidInput)
	}

	shops, err := s.store.Shops().GetByCity(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("failed to get shops: %w", err)
	}

	ids := make([]string, 0, len(shops))
	for _, shop := range shops {
		ids = append(ids, shop.ID)
	}
	return ids, nil
}
