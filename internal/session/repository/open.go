package repository

import (
	"context"
	"fmt"

	"pickup-portal/client/internal/config"
	"pickup-portal/client/internal/db"
)

// Open builds the Repository selected by cfg.StorageDriver. The returned close func
// releases any connection and is always non-nil.
func Open(ctx context.Context, cfg *config.Config) (Repository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		return NewMemoryRepository(), noop, nil
	case config.StorageDriverFile:
		path, err := cfg.SessionFilePath()
		if err != nil {
			return nil, noop, err
		}
		r, err := NewFileRepository(path)
		if err != nil {
			return nil, noop, err
		}
		return r, noop, nil
	case config.StorageDriverPostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("repository: open postgres: %w", err)
		}
		return NewPostgresRepository(conn, cfg.StorageNamespace), conn.Close, nil
	default:
		return nil, noop, fmt.Errorf("repository: %w: %q", ErrUnknownDriver, cfg.StorageDriver)
	}
}
