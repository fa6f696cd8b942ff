package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
)

// TokenSealer encrypts tokens at rest; *credential.Sealer implements it.
type TokenSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type CredentialRepository struct {
	db     *pgxpool.Pool
	sealer TokenSealer
}

func NewCredentialRepository(db *pgxpool.Pool, sealer TokenSealer) *CredentialRepository {
	return &CredentialRepository{db: db, sealer: sealer}
}

func (r *CredentialRepository) GetCredential(ctx context.Context, ownerID int64) (*db.Credential, error) {
	var c db.Credential
	var refresh, access string
	err := r.db.QueryRow(ctx, `
        SELECT owner_id, refresh_token, access_token, expiry, updated_at
        FROM email_credentials
        WHERE owner_id = $1
    `, ownerID).Scan(&c.OwnerID, &refresh, &access, &c.Expiry, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credential for owner %d: %w", ownerID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if c.RefreshToken, err = r.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("owner %d refresh token: %w", ownerID, err)
	}
	if c.AccessToken, err = r.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("owner %d access token: %w", ownerID, err)
	}
	return &c, nil
}

// UpsertCredential 每个 owner 一行
func (r *CredentialRepository) UpsertCredential(ctx context.Context, c *db.Credential) error {
	refresh, err := r.sealer.Seal(c.RefreshToken)
	if err != nil {
		return err
	}
	access, err := r.sealer.Seal(c.AccessToken)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
        INSERT INTO email_credentials (owner_id, refresh_token, access_token, expiry, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (owner_id) DO UPDATE
        SET refresh_token = EXCLUDED.refresh_token,
            access_token  = EXCLUDED.access_token,
            expiry        = EXCLUDED.expiry,
            updated_at    = NOW()
    `, c.OwnerID, refresh, access, c.Expiry)
	return err
}

func (r *CredentialRepository) DeleteCredential(ctx context.Context, ownerID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM email_credentials WHERE owner_id = $1`, ownerID)
	return err
}
