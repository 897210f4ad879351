package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
	"github.com/vingo-app/vingo-backend/pkg/config"
)

// amountTolerance absorbs client-side float rounding when checking totals
const amountTolerance = 0.01

// Payloads of the order events

// OrderNotification is sent to a shop owner when a new order arrives
type OrderNotification struct {
	OrderID         string                 `json:"orderId"`
	PaymentMethod   domain.PaymentMethod   `json:"paymentMethod"`
	DeliveryAddress domain.DeliveryAddress `json:"deliveryAddress"`
	ShopOrder       domain.ShopOrder       `json:"shopOrder"`
	Customer        Contact                `json:"user"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// StatusNotification is sent to the customer when a shop order changes
type StatusNotification struct {
	OrderID string             `json:"orderId"`
	ShopID  string             `json:"shopId"`
	Status  domain.OrderStatus `json:"status"`
	UserID  string             `json:"userId"`
}

// AssignmentOffer describes an open delivery to a delivery boy
type AssignmentOffer struct {
	AssignmentID    string                 `json:"assignmentId"`
	OrderID         string                 `json:"orderId"`
	ShopID          string                 `json:"shopId"`
	ShopName        string                 `json:"shopName"`
	DeliveryAddress domain.DeliveryAddress `json:"deliveryAddress"`
	Items           []domain.OrderItem     `json:"items"`
	Subtotal        float64                `json:"subtotal"`
}

// Contact is the public part of a user shown to the other side of an order
type Contact struct {
	ID       string           `json:"_id"`
	FullName string           `json:"fullName"`
	Mobile   string           `json:"mobile"`
	Location *domain.GeoPoint `json:"location,omitempty"`
}

func contactOf(u *domain.User) Contact {
	return Contact{ID: u.ID, FullName: u.FullName, Mobile: u.Mobile, Location: u.Location}
}

// StatusUpdateResult is returned to the owner after a status change
type StatusUpdateResult struct {
	ShopOrder     domain.ShopOrder `json:"shopOrder"`
	AssignmentID  string           `json:"assignment,omitempty"`
	AvailableBoys []Contact        `json:"availableBoys"`
}

// CurrentDelivery is the order a delivery boy is carrying
type CurrentDelivery struct {
	AssignmentID        string                 `json:"assignmentId"`
	OrderID             string                 `json:"orderId"`
	ShopOrder           domain.ShopOrder       `json:"shopOrder"`
	DeliveryAddress     domain.DeliveryAddress `json:"deliveryAddress"`
	Customer            Contact                `json:"user"`
	DeliveryBoyLocation *domain.GeoPoint       `json:"deliveryBoyLocation,omitempty"`
}

// OrderService handles the order lifecycle and delivery assignment
type OrderService struct {
	store    storage.Store
	emitter  Emitter
	presence Presence
	radius   float64
	logger   *zap.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(store storage.Store, emitter Emitter, cfg *config.Config, logger *zap.Logger) *OrderService {
	radius := cfg.Delivery.SearchRadiusMeters
	if radius <= 0 {
		radius = 5000
	}
	presence, _ := emitter.(Presence)
	return &OrderService{
		store:    store,
		emitter:  emitter,
		presence: presence,
		radius:   radius,
		logger:   logger.Named("order-service"),
	}
}

// Place creates an order from the customer's cart. The cart is split into one
// shop order per shop; prices come from the menu, not the client.
func (s *OrderService) Place(ctx context.Context, userID string, req *domain.PlaceOrderRequest) (*domain.Order, error) {
	customer, err := getUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	if len(req.CartItems) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}
	if !req.PaymentMethod.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, req.PaymentMethod)
	}
	addr := req.DeliveryAddress
	if strings.TrimSpace(addr.Text) == "" {
		return nil, fmt.Errorf("%w: delivery address required", ErrInvalidInput)
	}
	if _, err := domain.NewGeoPoint(addr.Latitude, addr.Longitude); err != nil {
		return nil, fmt.Errorf("%w: delivery address coordinates", ErrInvalidInput)
	}

	order := &domain.Order{
		ID:              domain.NewID(),
		UserID:          userID,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: addr,
	}

	// Group by shop, keeping the cart order
	index := make(map[string]int)
	for _, line := range req.CartItems {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
		}

		item, err := s.store.Items().GetByID(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: item %s no longer exists", ErrInvalidInput, line.ItemID)
			}
			return nil, fmt.Errorf("failed to get item: %w", err)
		}
		if line.ShopID != "" && line.ShopID != item.ShopID {
			return nil, fmt.Errorf("%w: item %s does not belong to shop %s", ErrInvalidInput, item.ID, line.ShopID)
		}

		i, ok := index[item.ShopID]
		if !ok {
			shop, err := s.store.Shops().GetByID(ctx, item.ShopID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, fmt.Errorf("%w: shop %s not found", ErrInvalidInput, item.ShopID)
				}
				return nil, fmt.Errorf("failed to get shop: %w", err)
			}
			order.ShopOrders = append(order.ShopOrders, domain.ShopOrder{
				ShopID:  shop.ID,
				OwnerID: shop.OwnerID,
				Status:  domain.StatusPending,
			})
			i = len(order.ShopOrders) - 1
			index[item.ShopID] = i
		}

		so := &order.ShopOrders[i]
		so.Items = append(so.Items, domain.OrderItem{
			ItemID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: line.Quantity,
		})
		so.Subtotal = roundAmount(so.Subtotal + item.Price*float64(line.Quantity))
	}

	for _, so := range order.ShopOrders {
		order.TotalAmount = roundAmount(order.TotalAmount + so.Subtotal)
	}
	if req.TotalAmount != 0 && math.Abs(req.TotalAmount-order.TotalAmount) > amountTolerance {
		return nil, fmt.Errorf("%w: total amount %.2f does not match cart total %.2f", ErrInvalidInput, req.TotalAmount, order.TotalAmount)
	}

	if err := s.store.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int("shops", len(order.ShopOrders)),
		zap.Float64("total", order.TotalAmount))

	for _, so := range order.ShopOrders {
		notify(s.emitter, s.logger, so.OwnerID, EventNewOrder, OrderNotification{
			OrderID:         order.ID,
			PaymentMethod:   order.PaymentMethod,
			DeliveryAddress: order.DeliveryAddress,
			ShopOrder:       so,
			Customer:        contactOf(customer),
			CreatedAt:       order.CreatedAt,
		})
	}

	return order, nil
}

// ListMine lists the orders relevant to the caller's role. Owners and delivery
// boys only see their own shop orders.
func (s *OrderService) ListMine(ctx context.Context, userID string) ([]*domain.Order, error) {
	user, err := getUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	var orders []*domain.Order
	switch user.Role {
	case domain.RoleOwner:
		orders, err = s.store.Orders().GetByOwner(ctx, userID)
	case domain.RoleDeliveryBoy:
		orders, err = s.store.Orders().GetByDeliveryBoy(ctx, userID)
	default:
		orders, err = s.store.Orders().GetByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	for _, order := range orders {
		restrictTo(order, user)
	}
	return orders, nil
}

// restrictTo drops the shop orders the user is not part of
func restrictTo(order *domain.Order, user *domain.User) {
	if user.Role == domain.RoleUser {
		return
	}
	kept := order.ShopOrders[:0]
	for _, so := range order.ShopOrders {
		if (user.Role == domain.RoleOwner && so.OwnerID == user.ID) ||
			(user.Role == domain.RoleDeliveryBoy && so.AssignedDeliveryBoy == user.ID) {
			kept = append(kept, so)
		}
	}
	order.ShopOrders = kept
}

// Get returns an order the caller takes part in
func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	user, err := getUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != userID {
		if user.Role == domain.RoleUser {
			return nil, fmt.Errorf("%w: not your order", ErrForbidden)
		}
		restrictTo(order, user)
		if len(order.ShopOrders) == 0 {
			return nil, fmt.Errorf("%w: not your order", ErrForbidden)
		}
	}
	return order, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// UpdateStatus moves a shop order forward. Moving to "out of delivery"
// offers the delivery to free delivery boys near the customer. While no
// delivery boy has been found the owner may repeat "out of delivery" to
// offer it again.
func (s *OrderService) UpdateStatus(ctx context.Context, ownerID, orderID, shopID string, status domain.OrderStatus) (*StatusUpdateResult, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if status == domain.StatusDelivered {
		return nil, fmt.Errorf("%w: delivery is confirmed by the delivery boy", ErrInvalidInput)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	so := order.ShopOrder(shopID)
	if so == nil {
		return nil, fmt.Errorf("%w: shop order", ErrNotFound)
	}
	if so.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: not your shop", ErrForbidden)
	}

	rebroadcast := status == domain.StatusOutOfDelivery && so.AssignmentID == ""
	if !domain.CanTransition(so.Status, status) && !(rebroadcast && so.Status == status) {
		return nil, fmt.Errorf("%w: cannot move from %q to %q", ErrConflict, so.Status, status)
	}

	update := storage.ShopOrderUpdate{ExpectStatus: so.Status}
	if status != so.Status {
		update.Status = status
	}

	result := &StatusUpdateResult{AvailableBoys: []Contact{}}
	var offeredTo []string
	if rebroadcast {
		result.AvailableBoys, offeredTo, err = s.availableDeliveryBoys(ctx, order)
		if err != nil {
			return nil, err
		}
		if len(offeredTo) > 0 {
			// reserved on the shop order before the assignment is stored;
			// fails if another offer got there first
			id := domain.NewID()
			unassigned := ""
			update.ExpectAssignmentID = &unassigned
			update.AssignmentID = &id
		} else {
			s.logger.Info("No delivery boys available",
				zap.String("order_id", order.ID),
				zap.String("shop_id", shopID))
		}
	}

	if update.Status == "" && update.AssignmentID == nil {
		result.ShopOrder = *so
		return result, nil
	}

	updated, err := s.updateShopOrder(ctx, orderID, shopID, update)
	if err != nil {
		return nil, err
	}
	so = updated.ShopOrder(shopID)

	if update.AssignmentID != nil {
		if err := s.createAssignment(ctx, updated, so, offeredTo); err != nil {
			return nil, err
		}
		result.AssignmentID = so.AssignmentID
	}
	result.ShopOrder = *so

	if update.Status == "" {
		return result, nil
	}

	s.logger.Info("Shop order status updated",
		zap.String("order_id", orderID),
		zap.String("shop_id", shopID),
		zap.String("status", string(status)))

	notify(s.emitter, s.logger, order.UserID, EventUpdateStatus, StatusNotification{
		OrderID: order.ID,
		ShopID:  shopID,
		Status:  status,
		UserID:  order.UserID,
	})

	return result, nil
}

// updateShopOrder writes one shop order conditionally, mapping store errors
func (s *OrderService) updateShopOrder(ctx context.Context, orderID, shopID string, update storage.ShopOrderUpdate) (*domain.Order, error) {
	order, err := s.store.Orders().UpdateShopOrder(ctx, orderID, shopID, update)
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: shop order", ErrNotFound)
	case errors.Is(err, storage.ErrConflict):
		return nil, fmt.Errorf("%w: shop order changed concurrently", ErrConflict)
	default:
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
}

// availableDeliveryBoys returns the delivery boys within the search radius of
// the delivery address who carry no order and are connected. Without a
// presence source every free delivery boy counts as connected.
func (s *OrderService) availableDeliveryBoys(ctx context.Context, order *domain.Order) ([]Contact, []string, error) {
	point, err := domain.NewGeoPoint(order.DeliveryAddress.Latitude, order.DeliveryAddress.Longitude)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: delivery address coordinates", ErrInvalidInput)
	}

	nearby, err := s.store.Users().FindNearby(ctx, domain.RoleDeliveryBoy, point, s.radius)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find delivery boys: %w", err)
	}

	busyIDs, err := s.store.Assignments().ActiveDeliveryBoys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list busy delivery boys: %w", err)
	}
	busy := make(map[string]struct{}, len(busyIDs))
	for _, id := range busyIDs {
		busy[id] = struct{}{}
	}

	available := make([]Contact, 0, len(nearby))
	ids := make([]string, 0, len(nearby))
	for _, boy := range nearby {
		if _, ok := busy[boy.ID]; ok {
			continue
		}
		if !s.online(ctx, boy.ID) {
			continue
		}
		available = append(available, contactOf(boy))
		ids = append(ids, boy.ID)
	}
	return available, ids, nil
}

func (s *OrderService) online(ctx context.Context, userID string) bool {
	if s.presence == nil {
		return true
	}
	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		s.logger.Warn("Presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		return true
	}
	return online
}

// createAssignment stores the assignment already reserved on so and offers
// it to the given delivery boys. The reservation is released if the
// assignment cannot be stored.
func (s *OrderService) createAssignment(ctx context.Context, order *domain.Order, so *domain.ShopOrder, offeredTo []string) error {
	assignment := &domain.DeliveryAssignment{
		ID:            so.AssignmentID,
		OrderID:       order.ID,
		ShopID:        so.ShopID,
		BroadcastedTo: offeredTo,
		Status:        domain.AssignmentBroadcasted,
	}
	if err := s.store.Assignments().Create(ctx, assignment); err != nil {
		reserved, unassigned := assignment.ID, ""
		if _, rerr := s.store.Orders().UpdateShopOrder(ctx, order.ID, so.ShopID, storage.ShopOrderUpdate{
			ExpectAssignmentID: &reserved,
			AssignmentID:       &unassigned,
		}); rerr != nil {
			s.logger.Error("Failed to release assignment reservation",
				zap.String("order_id", order.ID),
				zap.String("shop_id", so.ShopID),
				zap.Error(rerr))
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	offer, err := s.offer(ctx, assignment, order, so)
	if err != nil {
		return err
	}
	for _, id := range offeredTo {
		notify(s.emitter, s.logger, id, EventNewAssignment, offer)
	}

	s.logger.Info("Delivery offered",
		zap.String("assignment_id", assignment.ID),
		zap.Int("delivery_boys", len(offeredTo)))
	return nil
}

func (s *OrderService) offer(ctx context.Context, a *domain.DeliveryAssignment, order *domain.Order, so *domain.ShopOrder) (AssignmentOffer, error) {
	offer := AssignmentOffer{
		AssignmentID:    a.ID,
		OrderID:         order.ID,
		ShopID:          so.ShopID,
		DeliveryAddress: order.DeliveryAddress,
		Items:           so.Items,
		Subtotal:        so.Subtotal,
	}

	shop, err := s.store.Shops().GetByID(ctx, so.ShopID)
	switch {
	case err == nil:
		offer.ShopName = shop.Name
	case !errors.Is(err, storage.ErrNotFound):
		return offer, fmt.Errorf("failed to get shop: %w", err)
	}
	return offer, nil
}

// GetAssignments lists the open deliveries offered to a delivery boy
func (s *OrderService) GetAssignments(ctx context.Context, deliveryBoyID string) ([]AssignmentOffer, error) {
	if _, err := requireRole(ctx, s.store, deliveryBoyID, domain.RoleDeliveryBoy); err != nil {
		return nil, err
	}

	assignments, err := s.store.Assignments().GetBroadcastedTo(ctx, deliveryBoyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}

	offers := make([]AssignmentOffer, 0, len(assignments))
	for _, a := range assignments {
		order, err := s.store.Orders().GetByID(ctx, a.OrderID)
		if err != nil {
			s.logger.Warn("Skipping assignment with missing order",
				zap.String("assignment_id", a.ID), zap.Error(err))
			continue
		}
		so := order.ShopOrder(a.ShopID)
		if so == nil {
			continue
		}
		offer, err := s.offer(ctx, a, order, so)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// AcceptAssignment gives the delivery to the first delivery boy who accepts
// it. A delivery boy carries one order at a time.
func (s *OrderService) AcceptAssignment(ctx context.Context, deliveryBoyID, assignmentID string) (*domain.DeliveryAssignment, error) {
	if _, err := requireRole(ctx, s.store, deliveryBoyID, domain.RoleDeliveryBoy); err != nil {
		return nil, err
	}

	if _, err := s.store.Assignments().GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: assignment", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	assignment, err := s.store.Assignments().Claim(ctx, assignmentID, deliveryBoyID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, fmt.Errorf("%w: already delivering another order", ErrConflict)
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%w: assignment is no longer available", ErrConflict)
		}
		return nil, fmt.Errorf("failed to accept assignment: %w", err)
	}

	boy := deliveryBoyID
	if _, err := s.updateShopOrder(ctx, assignment.OrderID, assignment.ShopID, storage.ShopOrderUpdate{
		ExpectAssignmentID:  &assignment.ID,
		AssignedDeliveryBoy: &boy,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Assignment accepted",
		zap.String("assignment_id", assignment.ID),
		zap.String("delivery_boy_id", deliveryBoyID))
	return assignment, nil
}

// CurrentOrder returns the delivery a delivery boy is carrying
func (s *OrderService) CurrentOrder(ctx context.Context, deliveryBoyID string) (*CurrentDelivery, error) {
	boy, err := requireRole(ctx, s.store, deliveryBoyID, domain.RoleDeliveryBoy)
	if err != nil {
		return nil, err
	}

	assignment, err := s.store.Assignments().GetActiveByDeliveryBoy(ctx, deliveryBoyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no current order", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	order, err := s.getOrder(ctx, assignment.OrderID)
	if err != nil {
		return nil, err
	}
	so := order.ShopOrder(assignment.ShopID)
	if so == nil {
		return nil, fmt.Errorf("%w: shop order", ErrNotFound)
	}
	customer, err := getUser(ctx, s.store, order.UserID)
	if err != nil {
		return nil, err
	}

	return &CurrentDelivery{
		AssignmentID:        assignment.ID,
		OrderID:             order.ID,
		ShopOrder:           *so,
		DeliveryAddress:     order.DeliveryAddress,
		Customer:            contactOf(customer),
		DeliveryBoyLocation: boy.Location,
	}, nil
}

// MarkDelivered completes the delivery boy's shop order
func (s *OrderService) MarkDelivered(ctx context.Context, deliveryBoyID, orderID, shopID string) (*domain.ShopOrder, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	so := order.ShopOrder(shopID)
	if so == nil {
		return nil, fmt.Errorf("%w: shop order", ErrNotFound)
	}
	if so.AssignedDeliveryBoy != deliveryBoyID {
		return nil, fmt.Errorf("%w: not assigned to you", ErrForbidden)
	}
	if so.Status != domain.StatusOutOfDelivery {
		return nil, fmt.Errorf("%w: order is %q", ErrConflict, so.Status)
	}

	now := time.Now()
	assignmentID := so.AssignmentID
	updated, err := s.updateShopOrder(ctx, orderID, shopID, storage.ShopOrderUpdate{
		ExpectStatus:       domain.StatusOutOfDelivery,
		ExpectAssignmentID: &assignmentID,
		Status:             domain.StatusDelivered,
		DeliveredAt:        &now,
	})
	if err != nil {
		return nil, err
	}
	so = updated.ShopOrder(shopID)

	if so.AssignmentID != "" {
		assignment, err := s.store.Assignments().GetByID(ctx, so.AssignmentID)
		if err == nil {
			assignment.Status = domain.AssignmentCompleted
			err = s.store.Assignments().Update(ctx, assignment)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to complete assignment: %w", err)
		}
	}

	s.logger.Info("Shop order delivered",
		zap.String("order_id", orderID),
		zap.String("shop_id", shopID),
		zap.String("delivery_boy_id", deliveryBoyID))

	notify(s.emitter, s.logger, order.UserID, EventUpdateStatus, StatusNotification{
		OrderID: order.ID,
		ShopID:  shopID,
		Status:  domain.StatusDelivered,
		UserID:  order.UserID,
	})

	return so, nil
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
