package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vingo-app/vingo-backend/internal/domain"
)

// PlaceOrder places an order from the customer's cart
func (h *Handlers) PlaceOrder(c *gin.Context) {
	var req domain.PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.services.Order.Place(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.respondError(c, err, "Failed to place order")
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetMyOrders lists the caller's orders
func (h *Handlers) GetMyOrders(c *gin.Context) {
	orders, err := h.services.Order.ListMine(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err, "Failed to get orders")
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder returns one of the caller's orders
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.services.Order.Get(c.Request.Context(), userID(c), c.Param("orderId"))
	if err != nil {
		h.respondError(c, err, "Failed to get order")
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus lets a shop owner move their shop order forward
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	var req domain.StatusUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.services.Order.UpdateStatus(c.Request.Context(), userID(c), c.Param("orderId"), c.Param("shopId"), req.Status)
	if err != nil {
		h.respondError(c, err, "Failed to update order status")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetAssignments lists the deliveries offered to the caller
func (h *Handlers) GetAssignments(c *gin.Context) {
	offers, err := h.services.Order.GetAssignments(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err, "Failed to get assignments")
		return
	}
	c.JSON(http.StatusOK, offers)
}

// AcceptOrder claims an offered delivery
func (h *Handlers) AcceptOrder(c *gin.Context) {
	assignment, err := h.services.Order.AcceptAssignment(c.Request.Context(), userID(c), c.Param("assignmentId"))
	if err != nil {
		h.respondError(c, err, "Failed to accept order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order accepted", "assignment": assignment})
}

// GetCurrentOrder returns the delivery the caller is carrying
func (h *Handlers) GetCurrentOrder(c *gin.Context) {
	current, err := h.services.Order.CurrentOrder(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err, "Failed to get current order")
		return
	}
	c.JSON(http.StatusOK, current)
}

// MarkDelivered completes the caller's delivery
func (h *Handlers) MarkDelivered(c *gin.Context) {
	shopOrder, err := h.services.Order.MarkDelivered(c.Request.Context(), userID(c), c.Param("orderId"), c.Param("shopId"))
	if err != nil {
		h.respondError(c, err, "Failed to mark order delivered")
		return
	}
	c.JSON(http.StatusOK, shopOrder)
}
