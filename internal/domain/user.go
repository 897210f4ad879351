package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role defines what a user can do on the platform
type Role string

const (
	RoleUser        Role = "user"
	RoleOwner       Role = "owner"
	RoleDeliveryBoy Role = "deliveryBoy"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleOwner, RoleDeliveryBoy:
		return true
	}
	return false
}

// NewID returns a fresh random identifier for any entity
func NewID() string {
	return uuid.New().String()
}

// User represents a customer, shop owner or delivery boy
type User struct {
	ID           string    `json:"_id" bson:"_id"`
	FullName     string    `json:"fullName" bson:"full_name"`
	Email        string    `json:"email" bson:"email"`
	Mobile       string    `json:"mobile" bson:"mobile"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         Role      `json:"role" bson:"role"`
	Location     *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUpRequest represents a registration request
type SignUpRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Mobile   string `json:"mobile" binding:"required"`
	Role     Role   `json:"role" binding:"required"`
}

// SignInRequest represents a login request
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LocationUpdate is sent by clients reporting their position
type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
