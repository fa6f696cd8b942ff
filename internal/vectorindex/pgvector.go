package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const DefaultTable = "email_vectors"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PGIndex stores vectors in a pgvector table and ranks by cosine distance.
type PGIndex struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

func NewPGIndex(pool *pgxpool.Pool, table string, dims int) (*PGIndex, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dims)
	}
	return &PGIndex{pool: pool, table: table, dims: dims}, nil
}

func (x *PGIndex) Dimensions() int { return x.dims }

// EnsureSchema 创建向量表；维度取自配置，所以不放在 goose 迁移里
func (x *PGIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         BIGINT PRIMARY KEY,
			owner_id   BIGINT NOT NULL,
			embedding  vector(%d) NOT NULL,
			payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, x.table, x.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_owner_idx ON %s (owner_id)`, x.table, x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, x.table, x.table),
	}
	for _, stmt := range stmts {
		if _, err := x.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

func (x *PGIndex) Upsert(ctx context.Context, p Point) (string, error) {
	// 校验必须在访问数据库之前
	if err := ValidatePoint(p, x.dims); err != nil {
		return "", err
	}
	owner, err := ownerFromPayload(p.Payload)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal vector payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, embedding, payload, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`, x.table)
	if _, err := x.pool.Exec(ctx, query, p.ID, owner, pgvector.NewVector(p.Vector), payload); err != nil {
		return "", fmt.Errorf("upsert vector %d: %w", p.ID, err)
	}
	return strconv.FormatInt(p.ID, 10), nil
}

func (x *PGIndex) Search(ctx context.Context, q Query) ([]Hit, error) {
	if err := validateVector(q.Vector, x.dims); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	// score = 1 - cosine distance
	query := fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE ($2::bigint = 0 OR owner_id = $2)
		AND ($3::float8 IS NULL OR 1 - (embedding <=> $1) >= $3)
		ORDER BY embedding <=> $1
		LIMIT $4
	`, x.table)

	rows, err := x.pool.Query(ctx, query, pgvector.NewVector(q.Vector), q.OwnerID, q.ScoreThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h       Hit
			payload []byte
		)
		if err := rows.Scan(&h.ID, &payload, &h.Score); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &h.Payload); err != nil {
				return nil, fmt.Errorf("decode vector payload %d: %w", h.ID, err)
			}
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
