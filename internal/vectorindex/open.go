package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ezmail/pkg/config"
)

// Open builds the configured backend. The pgvector backend ensures its schema.
func Open(ctx context.Context, cfg config.VectorConfig, pool *pgxpool.Pool, dims int) (Index, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryIndex(dims), nil
	case "pgvector":
		table := cfg.Table
		if table == "" {
			table = DefaultTable
		}
		idx, err := NewPGIndex(pool, table, dims)
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
