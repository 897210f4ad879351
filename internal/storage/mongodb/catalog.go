package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
)

// ShopStore implements MongoDB shop storage
type ShopStore struct {
	collection *mongo.Collection
}

func (s *ShopStore) Create(ctx context.Context, shop *domain.Shop) error {
	shop.CreatedAt = time.Now()
	shop.UpdatedAt = time.Now()

	_, err := s.collection.InsertOne(ctx, shop)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create shop: %w", err)
	}
	return nil
}

func (s *ShopStore) GetByID(ctx context.Context, id string) (*domain.Shop, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *ShopStore) GetByOwner(ctx context.Context, ownerID string) (*domain.Shop, error) {
	return s.findOne(ctx, bson.M{"owner_id": ownerID})
}

func (s *ShopStore) findOne(ctx context.Context, filter bson.M) (*domain.Shop, error) {
	var shop domain.Shop
	err := s.collection.FindOne(ctx, filter).Decode(&shop)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return &shop, nil
}

func (s *ShopStore) GetByCity(ctx context.Context, city string) ([]*domain.Shop, error) {
	filter := bson.M{"city": exactFold(city)}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get shops: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	shops := make([]*domain.Shop, 0)
	if err := cursor.All(ctx, &shops); err != nil {
		return nil, fmt.Errorf("failed to decode shops: %w", err)
	}
	return shops, nil
}

func (s *ShopStore) Update(ctx context.Context, shop *domain.Shop) error {
	shop.UpdatedAt = time.Now()
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": shop.ID}, shop)
	if err != nil {
		return fmt.Errorf("failed to update shop: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ItemStore implements MongoDB menu item storage
type ItemStore struct {
	collection *mongo.Collection
}

func (s *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()

	_, err := s.collection.InsertOne(ctx, item)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (s *ItemStore) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (s *ItemStore) Update(ctx context.Context, item *domain.Item) error {
	item.UpdatedAt = time.Now()
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": item.ID}, item)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *ItemStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *ItemStore) GetByShop(ctx context.Context, shopID string) ([]*domain.Item, error) {
	return s.find(ctx, bson.M{"shop_id": shopID})
}

func (s *ItemStore) GetByShops(ctx context.Context, shopIDs []string) ([]*domain.Item, error) {
	return s.find(ctx, bson.M{"shop_id": bson.M{"$in": shopIDs}})
}

func (s *ItemStore) Search(ctx context.Context, shopIDs []string, query string) ([]*domain.Item, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return s.find(ctx, bson.M{
		"shop_id": bson.M{"$in": shopIDs},
		"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"category": pattern},
		},
	})
}

func (s *ItemStore) find(ctx context.Context, filter bson.M) ([]*domain.Item, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	items := make([]*domain.Item, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// exactFold matches a whole string case-insensitively
func exactFold(s string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
}
