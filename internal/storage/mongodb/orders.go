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
)

// OrderStore implements MongoDB order storage
type OrderStore struct {
	collection *mongo.Collection
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	_, err := s.collection.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now()
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": order.ID}, order)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *OrderStore) UpdateShopOrder(ctx context.Context, orderID, shopID string, update storage.ShopOrderUpdate) (*domain.Order, error) {
	match := bson.M{"shop_id": shopID}
	if update.ExpectStatus != "" {
		match["status"] = update.ExpectStatus
	}
	if update.ExpectAssignmentID != nil {
		if *update.ExpectAssignmentID == "" {
			match["assignment_id"] = bson.M{"$in": bson.A{nil, ""}}
		} else {
			match["assignment_id"] = *update.ExpectAssignmentID
		}
	}

	now := time.Now()
	set := bson.M{"updated_at": now}
	if update.Status != "" {
		set["shop_orders.$.status"] = update.Status
	}
	if update.AssignmentID != nil {
		set["shop_orders.$.assignment_id"] = *update.AssignmentID
	}
	if update.AssignedDeliveryBoy != nil {
		set["shop_orders.$.assigned_delivery_boy"] = *update.AssignedDeliveryBoy
	}
	if update.DeliveredAt != nil {
		set["shop_orders.$.delivered_at"] = *update.DeliveredAt
	}

	filter := bson.M{
		"_id":         orderID,
		"shop_orders": bson.M{"$elemMatch": match},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order domain.Order
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to update shop order: %w", err)
	}

	// Tell a missing shop order apart from a failed precondition
	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": orderID, "shop_orders.shop_id": shopID})
	if err != nil {
		return nil, fmt.Errorf("failed to check shop order: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return nil, storage.ErrConflict
}

func (s *OrderStore) GetByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

func (s *OrderStore) GetByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	return s.find(ctx, bson.M{"shop_orders.owner_id": ownerID})
}

func (s *OrderStore) GetByDeliveryBoy(ctx context.Context, deliveryBoyID string) ([]*domain.Order, error) {
	return s.find(ctx, bson.M{"shop_orders.assigned_delivery_boy": deliveryBoyID})
}

func (s *OrderStore) find(ctx context.Context, filter bson.M) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	orders := make([]*domain.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// AssignmentStore implements MongoDB delivery assignment storage
type AssignmentStore struct {
	collection *mongo.Collection
}

func (s *AssignmentStore) Create(ctx context.Context, assignment *domain.DeliveryAssignment) error {
	assignment.CreatedAt = time.Now()
	assignment.UpdatedAt = time.Now()

	_, err := s.collection.InsertOne(ctx, assignment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (s *AssignmentStore) GetByID(ctx context.Context, id string) (*domain.DeliveryAssignment, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *AssignmentStore) findOne(ctx context.Context, filter bson.M) (*domain.DeliveryAssignment, error) {
	var assignment domain.DeliveryAssignment
	err := s.collection.FindOne(ctx, filter).Decode(&assignment)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &assignment, nil
}

func (s *AssignmentStore) Update(ctx context.Context, assignment *domain.DeliveryAssignment) error {
	assignment.UpdatedAt = time.Now()
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": assignment.ID}, assignment)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *AssignmentStore) Claim(ctx context.Context, id, deliveryBoyID string) (*domain.DeliveryAssignment, error) {
	now := time.Now()
	filter := bson.M{
		"_id":            id,
		"status":         domain.AssignmentBroadcasted,
		"broadcasted_to": deliveryBoyID,
	}
	update := bson.M{
		"$set": bson.M{
			"status":      domain.AssignmentAssigned,
			"assigned_to": deliveryBoyID,
			"accepted_at": now,
			"updated_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var assignment domain.DeliveryAssignment
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&assignment)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		// one_assigned_per_delivery_boy
		if mongo.IsDuplicateKeyError(err) {
			return nil, storage.ErrConflict
		}
		return nil, fmt.Errorf("failed to claim assignment: %w", err)
	}
	return &assignment, nil
}

func (s *AssignmentStore) GetBroadcastedTo(ctx context.Context, deliveryBoyID string) ([]*domain.DeliveryAssignment, error) {
	filter := bson.M{
		"status":         domain.AssignmentBroadcasted,
		"broadcasted_to": deliveryBoyID,
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	assignments := make([]*domain.DeliveryAssignment, 0)
	if err := cursor.All(ctx, &assignments); err != nil {
		return nil, fmt.Errorf("failed to decode assignments: %w", err)
	}
	return assignments, nil
}

func (s *AssignmentStore) GetActiveByDeliveryBoy(ctx context.Context, deliveryBoyID string) (*domain.DeliveryAssignment, error) {
	return s.findOne(ctx, bson.M{
		"status":      domain.AssignmentAssigned,
		"assigned_to": deliveryBoyID,
	})
}

func (s *AssignmentStore) ActiveDeliveryBoys(ctx context.Context) ([]string, error) {
	values, err := s.collection.Distinct(ctx, "assigned_to", bson.M{"status": domain.AssignmentAssigned})
	if err != nil {
		return nil, fmt.Errorf("failed to list active delivery boys: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
