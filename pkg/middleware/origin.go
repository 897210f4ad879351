package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/pkg/config"
)

// OriginGate admits requests whose Origin header exactly matches one of the
// configured origins. Requests without an Origin header (curl, mobile apps,
// server-to-server) are admitted. The set is fixed at construction.
type OriginGate struct {
	origins map[string]struct{}
	logger  *zap.Logger
}

// NewOriginGate creates a gate over the given allow-list
func NewOriginGate(origins []string, logger *zap.Logger) *OriginGate {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return &OriginGate{
		origins: set,
		logger:  logger.Named("origin-gate"),
	}
}

// Allowed reports whether origin may reach the server
func (g *OriginGate) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := g.origins[origin]; ok {
		return true
	}
	g.logger.Warn("Blocked origin", zap.String("origin", origin))
	return false
}

// CORS returns the HTTP side of the gate. Disallowed origins are answered
// with 403 and no Access-Control-Allow-* headers. The gate runs ahead of
// the cors handler, which on its own admits an Origin naming the request's
// own host.
func CORS(gate *OriginGate, cfg config.CORSConfig) gin.HandlerFunc {
	handler := cors.New(cors.Config{
		AllowOriginFunc:  gate.Allowed,
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    cfg.ExposedHeaders,
		AllowCredentials: true,
		MaxAge:           time.Duration(cfg.MaxAge) * time.Second,
	})
	return func(c *gin.Context) {
		if !gate.Allowed(c.GetHeader("Origin")) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		handler(c)
	}
}

// CheckOrigin returns the realtime side of the gate, for use as a
// websocket.Upgrader CheckOrigin function
func CheckOrigin(gate *OriginGate) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return gate.Allowed(r.Header.Get("Origin"))
	}
}
