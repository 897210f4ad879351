package domain

import (
	"errors"
	"time"
)

// FoodType distinguishes vegetarian dishes
type FoodType string

const (
	FoodTypeVeg    FoodType = "veg"
	FoodTypeNonVeg FoodType = "non veg"
)

// Categories lists the menu categories accepted for items
var Categories = []string{
	"Snacks",
	"Main Course",
	"Desserts",
	"Pizza",
	"Burgers",
	"Sandwiches",
	"South Indian",
	"North Indian",
	"Chinese",
	"Fast Food",
	"Others",
}

// ErrInvalidRating is returned for ratings outside 1..5
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// IsValidCategory reports whether c is one of Categories
func IsValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Rating is the running average of customer ratings
type Rating struct {
	Average float64 `json:"average" bson:"average"`
	Count   int     `json:"count" bson:"count"`
}

// Add folds a new 1..5 rating into the average
func (r *Rating) Add(value int) error {
	if value < 1 || value > 5 {
		return ErrInvalidRating
	}
	total := r.Average*float64(r.Count) + float64(value)
	r.Count++
	r.Average = total / float64(r.Count)
	return nil
}

// Item is a dish on a shop's menu
type Item struct {
	ID        string    `json:"_id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Image     string    `json:"image,omitempty" bson:"image,omitempty"`
	ShopID    string    `json:"shop" bson:"shop_id"`
	Category  string    `json:"category" bson:"category"`
	Price     float64   `json:"price" bson:"price"`
	FoodType  FoodType  `json:"foodType" bson:"food_type"`
	Rating    Rating    `json:"rating" bson:"rating"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// ItemRequest adds or edits a menu item
type ItemRequest struct {
	Name     string   `json:"name" binding:"required"`
	Image    string   `json:"image"`
	Category string   `json:"category" binding:"required"`
	Price    float64  `json:"price" binding:"required"`
	FoodType FoodType `json:"foodType" binding:"required"`
}

// RatingRequest rates an item
type RatingRequest struct {
	ItemID string `json:"itemId" binding:"required"`
	Rating int    `json:"rating" binding:"required"`
}
