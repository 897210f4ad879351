package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vingo-app/vingo-backend/pkg/config"
)

// AuthRateLimiter limits sign-up and sign-in attempts per client, with a
// lockout once the limit is exceeded
type AuthRateLimiter struct {
	config config.RateLimitConfig
	logger *zap.Logger

	mu       sync.RWMutex
	limiters map[string]*authLimiter

	cleanupInterval time.Duration
	lastCleanup     time.Time
}

// authLimiter tracks rate limiting state for a single identifier
type authLimiter struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	lockedOut  bool
	lockoutEnd time.Time
}

// NewAuthRateLimiter creates a new rate limiter for auth endpoints
func NewAuthRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *AuthRateLimiter {
	cfg.SetDefaults()
	return &AuthRateLimiter{
		config:          cfg,
		logger:          logger.Named("auth-ratelimit"),
		limiters:        make(map[string]*authLimiter),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// getLimiter returns the rate limiter for an identifier, creating if needed
func (r *AuthRateLimiter) getLimiter(identifier string) *authLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastCleanup) > r.cleanupInterval {
		r.cleanup()
	}

	limiter, exists := r.limiters[identifier]
	if exists {
		limiter.lastSeen = time.Now()
		return limiter
	}

	// MaxAttempts per WindowSeconds, half of it available as a burst
	rateLimit := rate.Limit(float64(r.config.MaxAttempts) / float64(r.config.WindowSeconds))
	burst := int(math.Ceil(float64(r.config.MaxAttempts) / 2.0))
	if burst < 1 {
		burst = 1
	}

	limiter = &authLimiter{
		limiter:  rate.NewLimiter(rateLimit, burst),
		lastSeen: time.Now(),
	}
	r.limiters[identifier] = limiter

	return limiter
}

// cleanup removes limiters idle for more than 30 minutes
func (r *AuthRateLimiter) cleanup() {
	cutoff := time.Now().Add(-30 * time.Minute)
	for key, limiter := range r.limiters {
		if limiter.lastSeen.Before(cutoff) && !limiter.lockedOut {
			delete(r.limiters, key)
		}
	}
	r.lastCleanup = time.Now()
}

// Allow checks if a request is allowed for the given identifier
func (r *AuthRateLimiter) Allow(identifier string) bool {
	if !r.config.Enabled {
		return true
	}

	limiter := r.getLimiter(identifier)

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter.lockedOut {
		if time.Now().Before(limiter.lockoutEnd) {
			return false
		}
		limiter.lockedOut = false
	}

	if !limiter.limiter.Allow() {
		lockout := time.Duration(r.config.LockoutSeconds) * time.Second
		limiter.lockedOut = true
		limiter.lockoutEnd = time.Now().Add(lockout)

		r.logger.Warn("Auth rate limit exceeded, applying lockout",
			zap.String("identifier", identifier),
			zap.Duration("lockout_duration", lockout),
		)
		return false
	}

	return true
}

// RecordFailure makes a failed attempt cost two extra tokens. The tokens are
// taken even when fewer remain, leaving the limiter in debt so the next
// attempt waits for the refill.
func (r *AuthRateLimiter) RecordFailure(identifier string) {
	if !r.config.Enabled {
		return
	}

	limiter := r.getLimiter(identifier)
	now := time.Now()
	if res := limiter.limiter.ReserveN(now, 2); !res.OK() {
		// burst of one cannot hold two tokens
		limiter.limiter.ReserveN(now, 1)
	}
}

// AuthRateLimitMiddleware rate limits auth endpoints per client IP
func AuthRateLimitMiddleware(rl *AuthRateLimiter) gin.HandlerFunc {
	return AuthRateLimitMiddlewareWithIdentifier(rl, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// AuthRateLimitMiddlewareWithIdentifier rate limits using a custom identifier extractor
func AuthRateLimitMiddlewareWithIdentifier(rl *AuthRateLimiter, extractID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		identifier := extractID(c)
		if identifier == "" {
			identifier = "_anonymous"
		}

		if !rl.Allow(identifier) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many authentication attempts. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()

		// Unauthorized responses count as failures
		if c.Writer.Status() == http.StatusUnauthorized {
			rl.RecordFailure(identifier)
		}
	}
}
