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

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

// ExistsByExternalID reports whether (owner, source, external id) was stored before.
func (r *EmailRepository) ExistsByExternalID(ctx context.Context, ownerID int64, source, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM email_items
            WHERE owner_id = $1 AND source = $2 AND external_id = $3
        )
    `, ownerID, source, externalID).Scan(&exists)
	return exists, err
}

// InsertItem 插入邮件，唯一键冲突时返回 inserted=false
func (r *EmailRepository) InsertItem(ctx context.Context, e *db.EmailItem) (int64, bool, error) {
	if e.Source == "" {
		e.Source = db.SourceGmail
	}
	if e.Status == "" {
		e.Status = db.ItemStatusActive
	}
	query := `
        INSERT INTO email_items (
            owner_id, source, external_id, thread_id, sender_name, sender_address, recipients,
            subject, body_text, body_html, snippet, is_read, is_starred, is_important, labels,
            received_at, sent_at, raw_payload, status
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
        ON CONFLICT ON CONSTRAINT email_items_owner_external_uniq DO NOTHING
        RETURNING id, created_at, updated_at
    `
	var raw any
	if len(e.RawPayload) > 0 {
		raw = []byte(e.RawPayload)
	}
	err := r.db.QueryRow(ctx, query,
		e.OwnerID, e.Source, e.ExternalID, e.ThreadID, e.SenderName, e.SenderAddress, jsonList(e.Recipients),
		e.Subject, e.BodyText, e.BodyHTML, e.Snippet, e.IsRead, e.IsStarred, e.IsImportant, jsonList(e.Labels),
		e.ReceivedAt, e.SentAt, raw, string(e.Status),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return e.ID, true, nil
}

const itemColumns = `
    id, owner_id, source, external_id, thread_id, sender_name, sender_address, recipients,
    subject, body_text, body_html, snippet, is_read, is_starred, is_important, labels,
    received_at, sent_at, raw_payload, status, snoozed_until, created_at, updated_at`

// GetItem returns apperr.ErrNotFound when the id is unknown.
func (r *EmailRepository) GetItem(ctx context.Context, id int64) (*db.EmailItem, error) {
	var (
		e      db.EmailItem
		raw    []byte
		status string
	)
	err := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM email_items WHERE id = $1`, id).Scan(
		&e.ID, &e.OwnerID, &e.Source, &e.ExternalID, &e.ThreadID, &e.SenderName, &e.SenderAddress, &e.Recipients,
		&e.Subject, &e.BodyText, &e.BodyHTML, &e.Snippet, &e.IsRead, &e.IsStarred, &e.IsImportant, &e.Labels,
		&e.ReceivedAt, &e.SentAt, &raw, &status, &e.SnoozedUntil, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.RawPayload = raw
	e.Status = db.ItemStatus(status)
	return &e, nil
}

// SetSnooze 只能操作自己的邮件
func (r *EmailRepository) SetSnooze(ctx context.Context, ownerID, itemID int64, until time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE email_items
        SET status = $3, snoozed_until = $4, updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
    `, itemID, ownerID, string(db.ItemStatusSnoozed), until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d: %w", itemID, apperr.ErrNotFound)
	}
	return nil
}

func (r *EmailRepository) ClearSnooze(ctx context.Context, ownerID, itemID int64) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE email_items
        SET status = $3, snoozed_until = NULL, updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
    `, itemID, ownerID, string(db.ItemStatusActive))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d: %w", itemID, apperr.ErrNotFound)
	}
	return nil
}

// RestoreDue 一条 UPDATE 批量恢复到期的 snooze
func (r *EmailRepository) RestoreDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE email_items
        SET status = $1, snoozed_until = NULL, updated_at = NOW()
        WHERE status = $2 AND snoozed_until <= $3
    `, string(db.ItemStatusActive), string(db.ItemStatusSnoozed), now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// jsonList 避免 nil slice 写成 SQL NULL
func jsonList(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
