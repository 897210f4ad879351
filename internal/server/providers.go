package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vingo-app/vingo-backend/internal/api"
	"github.com/vingo-app/vingo-backend/pkg/middleware"
)

// =============================================================================
// Auth Provider - sign-up, sign-in and sign-out
// =============================================================================

// AuthProvider provides the public authentication routes
type AuthProvider struct {
	handlers *api.Handlers
	limiter  *middleware.AuthRateLimiter
}

// NewAuthProvider creates the auth route provider. limiter may be nil.
func NewAuthProvider(handlers *api.Handlers, limiter *middleware.AuthRateLimiter) *AuthProvider {
	return &AuthProvider{handlers: handlers, limiter: limiter}
}

func (p *AuthProvider) Name() string   { return "auth" }
func (p *AuthProvider) Prefix() string { return "/api/auth" }

func (p *AuthProvider) RegisterRoutes(group *gin.RouterGroup) {
	if p.limiter != nil {
		group.Use(middleware.AuthRateLimitMiddleware(p.limiter))
	}
	group.POST("/signup", p.handlers.SignUp)
	group.POST("/signin", p.handlers.SignIn)
	group.GET("/signout", p.handlers.SignOut)
}

// =============================================================================
// Authenticated API groups - user, shop, item, order
// =============================================================================

// GroupProvider mounts one authenticated API group
type GroupProvider struct {
	name   string
	prefix string
	auth   gin.HandlerFunc
	routes func(group *gin.RouterGroup)
}

func (p *GroupProvider) Name() string   { return p.name }
func (p *GroupProvider) Prefix() string { return p.prefix }

func (p *GroupProvider) RegisterRoutes(group *gin.RouterGroup) {
	group.Use(p.auth)
	p.routes(group)
}

// NewUserProvider provides /api/user
func NewUserProvider(h *api.Handlers, auth gin.HandlerFunc) *GroupProvider {
	return &GroupProvider{name: "user", prefix: "/api/user", auth: auth, routes: func(g *gin.RouterGroup) {
		g.GET("/current", h.GetCurrentUser)
		g.POST("/update-location", h.UpdateLocation)
	}}
}

// NewShopProvider provides /api/shop
func NewShopProvider(h *api.Handlers, auth gin.HandlerFunc) *GroupProvider {
	return &GroupProvider{name: "shop", prefix: "/api/shop", auth: auth, routes: func(g *gin.RouterGroup) {
		g.POST("/create-edit", h.CreateEditShop)
		g.GET("/get-my", h.GetMyShop)
		g.GET("/get-by-city/:city", h.GetShopsByCity)
	}}
}

// NewItemProvider provides /api/item
func NewItemProvider(h *api.Handlers, auth gin.HandlerFunc) *GroupProvider {
	return &GroupProvider{name: "item", prefix: "/api/item", auth: auth, routes: func(g *gin.RouterGroup) {
		g.POST("/add-item", h.AddItem)
		g.POST("/edit-item/:itemId", h.EditItem)
		g.GET("/get-by-id/:itemId", h.GetItem)
		g.DELETE("/delete/:itemId", h.DeleteItem)
		g.GET("/get-by-city/:city", h.GetItemsByCity)
		g.GET("/get-by-shop/:shopId", h.GetItemsByShop)
		g.GET("/search-items", h.SearchItems)
		g.POST("/rating", h.RateItem)
	}}
}

// NewOrderProvider provides /api/order
func NewOrderProvider(h *api.Handlers, auth gin.HandlerFunc) *GroupProvider {
	return &GroupProvider{name: "order", prefix: "/api/order", auth: auth, routes: func(g *gin.RouterGroup) {
		g.POST("/place-order", h.PlaceOrder)
		g.GET("/my-orders", h.GetMyOrders)
		g.GET("/get-order-by-id/:orderId", h.GetOrder)
		g.POST("/update-status/:orderId/:shopId", h.UpdateOrderStatus)
		g.GET("/get-assignments", h.GetAssignments)
		g.GET("/accept-order/:assignmentId", h.AcceptOrder)
		g.GET("/get-current-order", h.GetCurrentOrder)
		g.POST("/mark-delivered/:orderId/:shopId", h.MarkDelivered)
	}}
}

// APIProviders returns the five API route groups in mount order
func APIProviders(h *api.Handlers, auth gin.HandlerFunc, limiter *middleware.AuthRateLimiter) []RouteProvider {
	return []RouteProvider{
		NewAuthProvider(h, limiter),
		NewUserProvider(h, auth),
		NewShopProvider(h, auth),
		NewItemProvider(h, auth),
		NewOrderProvider(h, auth),
	}
}

// =============================================================================
// Realtime Provider - WebSocket endpoint on the shared listener
// =============================================================================

// RealtimeProvider mounts the realtime hub
type RealtimeProvider struct {
	path string
	hub  http.Handler
}

// NewRealtimeProvider mounts hub at path
func NewRealtimeProvider(path string, hub http.Handler) *RealtimeProvider {
	return &RealtimeProvider{path: path, hub: hub}
}

func (p *RealtimeProvider) Name() string   { return "realtime" }
func (p *RealtimeProvider) Prefix() string { return p.path }

func (p *RealtimeProvider) RegisterRoutes(group *gin.RouterGroup) {
	// The hub answers 405 itself for methods it does not serve
	group.Any("", gin.WrapH(p.hub))
}
