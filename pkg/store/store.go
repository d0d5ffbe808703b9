// Package store persists class chunks, the answer history and the email
// audit. Three backends share the types.Store contract: Postgres with
// pgvector, JSON artifact files, and memory.
package store

import (
	"context"
	"fmt"

	"github.com/xhad/tutor/internal/types"
)

const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

type StoreConfig struct {
	Backend     string
	DatabaseURL string
	TablePrefix string
	Dir         string
}

var (
	_ types.Store = (*PostgresStore)(nil)
	_ types.Store = (*FileStore)(nil)
	_ types.Store = (*MemoryStore)(nil)
)

// Open builds the configured backend. An empty backend picks Postgres when a
// database URL is set and JSON artifacts otherwise.
func Open(ctx context.Context, config StoreConfig) (types.Store, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendFile
		if config.DatabaseURL != "" {
			backend = BackendPostgres
		}
	}

	switch backend {
	case BackendPostgres:
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend needs a database URL")
		}
		s, err := NewPostgres(ctx, PostgresConfig{ConnString: config.DatabaseURL, TablePrefix: config.TablePrefix})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendFile:
		if config.Dir == "" {
			return nil, fmt.Errorf("file backend needs a directory")
		}
		s, err := NewFile(config.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
