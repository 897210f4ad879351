package domain

import "time"

// Shop is a restaurant owned by a user with the owner role
type Shop struct {
	ID        string    `json:"_id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Image     string    `json:"image,omitempty" bson:"image,omitempty"`
	OwnerID   string    `json:"owner" bson:"owner_id"`
	City      string    `json:"city" bson:"city"`
	State     string    `json:"state" bson:"state"`
	Address   string    `json:"address" bson:"address"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// ShopRequest creates or edits the caller's shop
type ShopRequest struct {
	Name    string `json:"name" binding:"required"`
	Image   string `json:"image"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	Address string `json:"address" binding:"required"`
}
