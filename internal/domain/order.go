package domain

import "time"

// PaymentMethod is how the customer pays
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

// IsValid reports whether m is a known payment method
func (m PaymentMethod) IsValid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// OrderStatus is the lifecycle state of one shop's part of an order
type OrderStatus string

const (
	StatusPending       OrderStatus = "pending"
	StatusPreparing     OrderStatus = "preparing"
	StatusOutOfDelivery OrderStatus = "out of delivery"
	StatusDelivered     OrderStatus = "delivered"
)

// statusOrder ranks statuses; a shop order only ever moves forward.
var statusOrder = map[OrderStatus]int{
	StatusPending:       0,
	StatusPreparing:     1,
	StatusOutOfDelivery: 2,
	StatusDelivered:     3,
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransition reports whether a shop order may move from one status to another.
// Steps may be skipped but never reversed, and delivered is terminal.
func CanTransition(from, to OrderStatus) bool {
	f, ok := statusOrder[from]
	if !ok {
		return false
	}
	t, ok := statusOrder[to]
	if !ok {
		return false
	}
	return t > f
}

// DeliveryAddress is where the order goes
type DeliveryAddress struct {
	Text      string  `json:"text" bson:"text"`
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// OrderItem is one line of a shop order
type OrderItem struct {
	ItemID   string  `json:"item" bson:"item_id"`
	Name     string  `json:"name" bson:"name"`
	Price    float64 `json:"price" bson:"price"`
	Quantity int     `json:"quantity" bson:"quantity"`
}

// ShopOrder is the part of an order fulfilled by a single shop
type ShopOrder struct {
	ShopID              string      `json:"shop" bson:"shop_id"`
	OwnerID             string      `json:"owner" bson:"owner_id"`
	Subtotal            float64     `json:"subtotal" bson:"subtotal"`
	Items               []OrderItem `json:"shopOrderItems" bson:"items"`
	Status              OrderStatus `json:"status" bson:"status"`
	AssignmentID        string      `json:"assignment,omitempty" bson:"assignment_id,omitempty"`
	AssignedDeliveryBoy string      `json:"assignedDeliveryBoy,omitempty" bson:"assigned_delivery_boy,omitempty"`
	DeliveredAt         *time.Time  `json:"deliveredAt,omitempty" bson:"delivered_at,omitempty"`
}

// Order is a customer order spanning one or more shops
type Order struct {
	ID              string          `json:"_id" bson:"_id"`
	UserID          string          `json:"user" bson:"user_id"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" bson:"payment_method"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress" bson:"delivery_address"`
	TotalAmount     float64         `json:"totalAmount" bson:"total_amount"`
	ShopOrders      []ShopOrder     `json:"shopOrders" bson:"shop_orders"`
	CreatedAt       time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updated_at"`
}

// ShopOrder returns the shop order for shopID, or nil
func (o *Order) ShopOrder(shopID string) *ShopOrder {
	for i := range o.ShopOrders {
		if o.ShopOrders[i].ShopID == shopID {
			return &o.ShopOrders[i]
		}
	}
	return nil
}

// CartItem is one line of the customer's cart
type CartItem struct {
	ItemID   string  `json:"id" binding:"required"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity" binding:"required"`
	ShopID   string  `json:"shop" binding:"required"`
}

// PlaceOrderRequest places an order from a cart
type PlaceOrderRequest struct {
	CartItems       []CartItem      `json:"cartItems" binding:"required"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" binding:"required"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress" binding:"required"`
	TotalAmount     float64         `json:"totalAmount"`
}

// StatusUpdateRequest changes a shop order status
type StatusUpdateRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}
