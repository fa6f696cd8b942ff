// Package repository holds the Postgres implementations of the pipeline stores.
package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"ezmail/pkg/outbox"
)

// Store bundles every repository over one pool so a service can pass a single
// value wherever a composite store interface is expected.
type Store struct {
	*EmailRepository
	*EnrichmentRepository
	*CredentialRepository
	*outbox.Repository
}

// NewStore 的 sealer 为 nil 时不能使用凭证相关方法
func NewStore(pool *pgxpool.Pool, sealer TokenSealer) *Store {
	return &Store{
		EmailRepository:      NewEmailRepository(pool),
		EnrichmentRepository: NewEnrichmentRepository(pool),
		CredentialRepository: NewCredentialRepository(pool, sealer),
		Repository:           outbox.NewRepository(pool),
	}
}
