// Package store owns the canonical session table and runner-event log.
// Each is a single lock-guarded table; persistence backends hold a
// write-through copy of the whole document, never an independent view
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kode4food/stagehand/internal/config"
)

type (
	// Document persists one store as a single JSON document. Load returns
	// nil when no document has been written yet
	Document interface {
		Load(context.Context) ([]byte, error)
		Save(context.Context, []byte) error
		Close() error
	}

	memoryDocument struct{}
)

var (
	ErrNotFound         = errors.New("no matching record")
	ErrSessionExists    = errors.New("session key already exists")
	ErrDuplicateTraceID = errors.New("trace id already recorded")
)

// NewDocument constructs the persistence backend named by the store
// configuration. An unimplemented backend is a hard failure; there is no
// fallback to another backend
func NewDocument(cfg *config.StoreConfig, name string) (Document, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memoryDocument{}, nil
	case config.BackendFile:
		return newBlobDocument(cfg.Path)
	case config.BackendRedis:
		return newRedisDocument(cfg, name), nil
	default:
		return nil, fmt.Errorf(
			"%w: %q", config.ErrUnsupportedBackend, cfg.Backend,
		)
	}
}

func (memoryDocument) Load(context.Context) ([]byte, error) { return nil, nil }

func (memoryDocument) Save(context.Context, []byte) error { return nil }

func (memoryDocument) Close() error { return nil }
