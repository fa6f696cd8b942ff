package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
)

// EnrichmentRepository 管理 email_summaries / email_metadata
type EnrichmentRepository struct {
	db *pgxpool.Pool
}

func NewEnrichmentRepository(db *pgxpool.Pool) *EnrichmentRepository {
	return &EnrichmentRepository{db: db}
}

func (r *EnrichmentRepository) SummaryExists(ctx context.Context, emailID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_summaries WHERE email_id = $1)`, emailID,
	).Scan(&exists)
	return exists, err
}

// SaveEnrichment writes summary and metadata in one transaction. It returns
// false when another worker already stored a summary for the email.
func (r *EnrichmentRepository) SaveEnrichment(ctx context.Context, s *db.EmailSummary, m *db.EmailMetadata) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
        INSERT INTO email_summaries (email_id, summary, key_points, sentiment, category, priority, vector_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT ON CONSTRAINT email_summaries_email_id_uniq DO NOTHING
        RETURNING id, created_at
    `, s.EmailID, s.Summary, jsonList(s.KeyPoints), s.Sentiment, s.Category, s.Priority, s.VectorKey,
	).Scan(&s.ID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert summary: %w", err)
	}

	err = tx.QueryRow(ctx, `
        INSERT INTO email_metadata (
            email_id, entities, topics, language, word_count, reading_time_minutes,
            tags, action_items, has_attachments, attachment_types
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (email_id) DO UPDATE
        SET entities = EXCLUDED.entities,
            topics = EXCLUDED.topics,
            language = EXCLUDED.language,
            word_count = EXCLUDED.word_count,
            reading_time_minutes = EXCLUDED.reading_time_minutes,
            tags = EXCLUDED.tags,
            action_items = EXCLUDED.action_items,
            has_attachments = EXCLUDED.has_attachments,
            attachment_types = EXCLUDED.attachment_types
        RETURNING created_at
    `, m.EmailID, jsonList(m.Entities), jsonList(m.Topics), m.Language, m.WordCount, m.ReadingTimeMinutes,
		jsonList(m.Tags), jsonList(m.ActionItems), m.HasAttachments, jsonList(m.AttachmentTypes),
	).Scan(&m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *EnrichmentRepository) SetVectorKey(ctx context.Context, emailID int64, key string) error {
	tag, err := r.db.Exec(ctx, `UPDATE email_summaries SET vector_key = $2 WHERE email_id = $1`, emailID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("summary %d: %w", emailID, apperr.ErrNotFound)
	}
	return nil
}

func (r *EnrichmentRepository) GetSummary(ctx context.Context, emailID int64) (*db.EmailSummary, error) {
	var s db.EmailSummary
	err := r.db.QueryRow(ctx, `
        SELECT id, email_id, summary, key_points, sentiment, category, priority, vector_key, created_at
        FROM email_summaries
        WHERE email_id = $1
    `, emailID).Scan(&s.ID, &s.EmailID, &s.Summary, &s.KeyPoints, &s.Sentiment, &s.Category, &s.Priority, &s.VectorKey, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("summary %d: %w", emailID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListUnenriched 返回 id > afterID、创建早于 olderThan 且还没有 summary 的邮件
func (r *EnrichmentRepository) ListUnenriched(ctx context.Context, olderThan time.Time, afterID int64, limit int) ([]int64, error) {
	return r.listIDs(ctx, `
        SELECT i.id
        FROM email_items i
        LEFT JOIN email_summaries s ON s.email_id = i.id
        WHERE s.id IS NULL AND i.created_at <= $1 AND i.id > $2
        ORDER BY i.id
        LIMIT $3
    `, olderThan, afterID, limit)
}

func (r *EnrichmentRepository) ListMissingVector(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	return r.listIDs(ctx, `
        SELECT email_id FROM email_summaries
        WHERE vector_key IS NULL AND email_id > $1
        ORDER BY email_id
        LIMIT $2
    `, afterID, limit)
}

func (r *EnrichmentRepository) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// GetSearchRows joins vector hits back to items; rows of other owners are never returned.
func (r *EnrichmentRepository) GetSearchRows(ctx context.Context, ownerID int64, ids []int64) (map[int64]db.SearchRow, error) {
	out := make(map[int64]db.SearchRow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
        SELECT i.id, i.owner_id, i.subject, i.sender_name, i.sender_address, i.received_at,
               COALESCE(s.summary, ''), COALESCE(s.category, ''), COALESCE(s.priority, '')
        FROM email_items i
        LEFT JOIN email_summaries s ON s.email_id = i.id
        WHERE i.owner_id = $1 AND i.id = ANY($2)
    `, ownerID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row  db.SearchRow
			item db.EmailItem
		)
		if err := rows.Scan(&row.EmailID, &row.OwnerID, &row.Subject, &item.SenderName, &item.SenderAddress,
			&row.ReceivedAt, &row.Summary, &row.Category, &row.Priority); err != nil {
			return nil, err
		}
		row.Sender = item.Sender()
		out[row.EmailID] = row
	}
	return out, rows.Err()
}
