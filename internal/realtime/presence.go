package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vingo-app/vingo-backend/pkg/config"
)

// PresenceStore tracks which users hold at least one live connection.
// Implementations must be safe for concurrent use.
type PresenceStore interface {
	// SetOnline records connID as a live connection of userID.
	SetOnline(ctx context.Context, userID, connID string) error

	// SetOffline removes connID from userID's live connections.
	SetOffline(ctx context.Context, userID, connID string) error

	// IsOnline reports whether userID has any live connection.
	IsOnline(ctx context.Context, userID string) (bool, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// NewPresenceStore builds the presence store selected by cfg. The Redis
// store does not dial until first use; call Ping to verify it.
func NewPresenceStore(cfg *config.RealtimeConfig, logger *zap.Logger) PresenceStore {
	if cfg.Presence == "redis" {
		return NewRedisPresenceStore(&cfg.Redis, logger)
	}
	return NewMemoryPresenceStore()
}

// MemoryPresenceStore keeps presence for a single instance.
type MemoryPresenceStore struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // userID -> connIDs
}

// NewMemoryPresenceStore creates an in-memory presence store.
func NewMemoryPresenceStore() *MemoryPresenceStore {
	return &MemoryPresenceStore{conns: make(map[string]map[string]struct{})}
}

func (m *MemoryPresenceStore) SetOnline(ctx context.Context, userID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		m.conns[userID] = set
	}
	set[connID] = struct{}{}
	return nil
}

func (m *MemoryPresenceStore) SetOffline(ctx context.Context, userID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		return nil // Idempotent
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(m.conns, userID)
	}
	return nil
}

func (m *MemoryPresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns[userID]) > 0, nil
}

func (m *MemoryPresenceStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryPresenceStore) Close() error                   { return nil }

// RedisPresenceStore shares presence between instances. Each user maps to a
// set of connection IDs that expires if no instance refreshes it.
type RedisPresenceStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisPresenceStore creates a Redis-backed presence store.
func NewRedisPresenceStore(cfg *config.RedisConfig, logger *zap.Logger) *RedisPresenceStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "vingo:presence:"
	}

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisPresenceStore{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
		logger:    logger.Named("redis_presence"),
	}
}

func (r *RedisPresenceStore) userKey(userID string) string {
	return r.keyPrefix + userID
}

func (r *RedisPresenceStore) SetOnline(ctx context.Context, userID, connID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.userKey(userID), connID)
	pipe.Expire(ctx, r.userKey(userID), r.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisPresenceStore) SetOffline(ctx context.Context, userID, connID string) error {
	return r.client.SRem(ctx, r.userKey(userID), connID).Err()
}

func (r *RedisPresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, r.userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisPresenceStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisPresenceStore) Close() error {
	return r.client.Close()
}
