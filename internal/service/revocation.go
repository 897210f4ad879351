package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenRevocations remembers signed-out tokens until they would have expired
// anyway. Entries are purged by a background worker.
type TokenRevocations struct {
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	tokens   map[string]time.Time // jti -> expiry time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTokenRevocations creates a revocation list purged every interval
func NewTokenRevocations(interval time.Duration, logger *zap.Logger) *TokenRevocations {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &TokenRevocations{
		interval: interval,
		logger:   logger.Named("token-revocations"),
		tokens:   make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
}

// Start begins the cleanup worker
func (r *TokenRevocations) Start() {
	r.wg.Add(1)
	go r.cleanupLoop()

	r.logger.Info("Token revocation worker started", zap.Duration("cleanup_interval", r.interval))
}

// Stop stops the cleanup worker. It is safe to call more than once.
func (r *TokenRevocations) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
		r.logger.Info("Token revocation worker stopped")
	})
}

func (r *TokenRevocations) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *TokenRevocations) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for jti, expiry := range r.tokens {
		if now.After(expiry) {
			delete(r.tokens, jti)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Debug("Purged expired revocations",
			zap.Int("removed", removed),
			zap.Int("remaining", len(r.tokens)),
		)
	}
}

// Revoke marks a token ID as revoked until expiry
func (r *TokenRevocations) Revoke(jti string, expiry time.Time) {
	if jti == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[jti] = expiry
}

// IsRevoked reports whether the token ID was revoked and has not yet expired
func (r *TokenRevocations) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	expiry, exists := r.tokens[jti]
	return exists && time.Now().Before(expiry)
}

// Count returns the number of tracked revocations
func (r *TokenRevocations) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
