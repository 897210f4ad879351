package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/service"
)

// User handlers

// GetCurrentUser returns the signed-in user
func (h *Handlers) GetCurrentUser(c *gin.Context) {
	user, err := h.services.User.GetCurrent(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err, "Failed to get user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateLocation stores the caller's position
func (h *Handlers) UpdateLocation(c *gin.Context) {
	var req domain.LocationUpdate
	if !bindJSON(c, &req) {
		return
	}

	if err := h.services.User.UpdateLocation(c.Request.Context(), userID(c), req.Latitude, req.Longitude); err != nil {
		h.respondError(c, err, "Failed to update location")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated"})
}

// LocationEvent handles the realtime updateLocation event
func (h *Handlers) LocationEvent(ctx context.Context, userID string, data json.RawMessage) error {
	var req domain.LocationUpdate
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: malformed location", service.ErrInvalidInput)
	}
	return h.services.User.UpdateLocation(ctx, userID, req.Latitude, req.Longitude)
}

// Shop handlers

// CreateEditShop creates the owner's shop or updates it
func (h *Handlers) CreateEditShop(c *gin.Context) {
	var req domain.ShopRequest
	if !bindJSON(c, &req) {
		return
	}

	shop, err := h.services.Shop.CreateOrEdit(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to save shop")
		return
	}
	c.JSON(http.StatusOK, shop)
}

// GetMyShop returns the owner's shop with its items
func (h *Handlers) GetMyShop(c *gin.Context) {
	shop, err := h.services.Shop.GetMine(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err, "Failed to get shop")
		return
	}
	c.JSON(http.StatusOK, shop)
}

// GetShopsByCity lists the shops of a city
func (h *Handlers) GetShopsByCity(c *gin.Context) {
	shops, err := h.services.Shop.GetByCity(c.Request.Context(), c.Param("city"))
	if err != nil {
		h.respondError(c, err, "Failed to get shops")
		return
	}
	c.JSON(http.StatusOK, shops)
}

// Item handlers

// AddItem adds an item to the owner's shop
func (h *Handlers) AddItem(c *gin.Context) {
	var req domain.ItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.services.Item.Add(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to add item")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// EditItem updates an item of the owner's shop
func (h *Handlers) EditItem(c *gin.Context) {
	var req domain.ItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.services.Item.Edit(c.Request.Context(), userID(c), c.Param("itemId"), &req)
	if err != nil {
		h.respondError(c, err, "Failed to edit item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetItem returns an item
func (h *Handlers) GetItem(c *gin.Context) {
	item, err := h.services.Item.Get(c.Request.Context(), c.Param("itemId"))
	if err != nil {
		h.respondError(c, err, "Failed to get item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteItem removes an item of the owner's shop
func (h *Handlers) DeleteItem(c *gin.Context) {
	if err := h.services.Item.Delete(c.Request.Context(), userID(c), c.Param("itemId")); err != nil {
		h.respondError(c, err, "Failed to delete item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item deleted"})
}

// GetItemsByCity lists the items sold in a city
func (h *Handlers) GetItemsByCity(c *gin.Context) {
	items, err := h.services.Item.GetByCity(c.Request.Context(), c.Param("city"))
	if err != nil {
		h.respondError(c, err, "Failed to get items")
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetItemsByShop returns a shop and its menu
func (h *Handlers) GetItemsByShop(c *gin.Context) {
	details, err := h.services.Item.GetByShop(c.Request.Context(), c.Param("shopId"))
	if err != nil {
		h.respondError(c, err, "Failed to get items")
		return
	}
	c.JSON(http.StatusOK, details)
}

// SearchItems searches a city's items by name or category
func (h *Handlers) SearchItems(c *gin.Context) {
	items, err := h.services.Item.Search(c.Request.Context(), c.Query("query"), c.Query("city"))
	if err != nil {
		h.respondError(c, err, "Failed to search items")
		return
	}
	c.JSON(http.StatusOK, items)
}

// RateItem adds a rating to an item
func (h *Handlers) RateItem(c *gin.Context) {
	var req domain.RatingRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.services.Item.Rate(c.Request.Context(), req.ItemID, req.Rating)
	if err != nil {
		h.respondError(c, err, "Failed to rate item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rating": item.Rating})
}
