package backend

import (
	"context"
	"fmt"

	"github.com/vingo-app/vingo-backend/internal/storage"
	"github.com/vingo-app/vingo-backend/internal/storage/memory"
	"github.com/vingo-app/vingo-backend/internal/storage/mongodb"
	"github.com/vingo-app/vingo-backend/pkg/config"
)

// Type defines the type of storage backend
type Type string

const (
	// TypeMemory uses in-memory storage (for testing/development)
	TypeMemory Type = "memory"
	// TypeMongoDB uses MongoDB storage (for production)
	TypeMongoDB Type = "mongodb"
)

// Backend wraps storage stores with a common interface for lifecycle management
type Backend interface {
	storage.Store

	// Type reports which storage is in use
	Type() Type
	// Connect establishes the connection and prepares indexes. It is the
	// database readiness dependency and must succeed before serving.
	Connect(ctx context.Context) error
}

// memoryBackend wraps the memory store to implement Backend
type memoryBackend struct {
	*memory.Store
}

func (b *memoryBackend) Type() Type                        { return TypeMemory }
func (b *memoryBackend) Connect(ctx context.Context) error { return nil }

// mongoBackend wraps the MongoDB store to implement Backend
type mongoBackend struct {
	*mongodb.Store
}

func (b *mongoBackend) Type() Type { return TypeMongoDB }

// New creates a storage backend based on the configuration. No network I/O
// happens here; call Connect before use.
func New(cfg *config.Config) (Backend, error) {
	storageType := Type(cfg.Storage.Type)

	switch storageType {
	case TypeMemory, "":
		// Default to memory if not specified
		return &memoryBackend{Store: memory.NewStore()}, nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(&cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		return &mongoBackend{Store: store}, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
