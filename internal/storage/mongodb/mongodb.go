package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
	"github.com/vingo-app/vingo-backend/pkg/config"
)

// Store implements MongoDB storage
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoDBConfig

	users       *UserStore
	shops       *ShopStore
	items       *ItemStore
	orders      *OrderStore
	assignments *AssignmentStore
}

// NewStore creates a new MongoDB store. The driver connects lazily, so no
// network I/O happens until Connect or the first query.
func NewStore(cfg *config.MongoDBConfig) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetServerSelectionTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	database := client.Database(cfg.Database)

	s := &Store{
		client:   client,
		database: database,
		cfg:      cfg,
	}

	s.users = &UserStore{collection: database.Collection("users")}
	s.shops = &ShopStore{collection: database.Collection("shops")}
	s.items = &ItemStore{collection: database.Collection("items")}
	s.orders = &OrderStore{collection: database.Collection("orders")}
	s.assignments = &AssignmentStore{collection: database.Collection("delivery_assignments")}

	return s, nil
}

// Connect verifies the server is reachable and creates indexes
func (s *Store) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if err := s.createIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.users.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.shops.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "city", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create shop indexes: %w", err)
	}

	_, err = s.items.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "shop_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create item indexes: %w", err)
	}

	_, err = s.orders.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "shop_orders.owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "shop_orders.assigned_delivery_boy", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	_, err = s.assignments.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "broadcasted_to", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "assigned_to", Value: 1}}},
		{
			Keys: bson.D{{Key: "assigned_to", Value: 1}},
			Options: options.Index().
				SetName("one_assigned_per_delivery_boy").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": domain.AssignmentAssigned}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create assignment indexes: %w", err)
	}

	return nil
}

func (s *Store) Users() storage.UserStore             { return s.users }
func (s *Store) Shops() storage.ShopStore             { return s.shops }
func (s *Store) Items() storage.ItemStore             { return s.items }
func (s *Store) Orders() storage.OrderStore           { return s.orders }
func (s *Store) Assignments() storage.AssignmentStore { return s.assignments }

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// UserStore implements MongoDB user storage
type UserStore struct {
	collection *mongo.Collection
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	_, err := s.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := s.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now()
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *UserStore) UpdateLocation(ctx context.Context, id string, location domain.GeoPoint) error {
	update := bson.M{
		"$set": bson.M{
			"location":   location,
			"updated_at": time.Now(),
		},
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *UserStore) FindNearby(ctx context.Context, role domain.Role, point domain.GeoPoint, maxMeters float64) ([]*domain.User, error) {
	// $near sorts by distance
	filter := bson.M{
		"role": role,
		"location": bson.M{
			"$near": bson.M{
				"$geometry":    point,
				"$maxDistance": maxMeters,
			},
		},
	}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby users: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	users := make([]*domain.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}
