package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// CsrfTokenRepository handles persistence for CSRF tokens.
type CsrfTokenRepository struct {
	db db.DBTX
}

func NewCsrfTokenRepository(conn db.DBTX) *CsrfTokenRepository {
	return &CsrfTokenRepository{db: conn}
}

// LockIP takes a transaction-scoped advisory lock keyed by ip.
// It must run inside a transaction; the lock is released on commit or rollback.
func (r *CsrfTokenRepository) LockIP(ctx context.Context, ip string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "csrf:"+ip)
	return err
}

// InvalidateLive marks every unused, unexpired token of ip as used.
func (r *CsrfTokenRepository) InvalidateLive(ctx context.Context, ip string, now time.Time) (int64, error) {
	const query = `
		UPDATE csrf_tokens
		SET used = TRUE, updated_at = $2
		WHERE ip = $1 AND used = FALSE AND expired_at > $2`
	result, err := r.db.ExecContext(ctx, query, ip, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *CsrfTokenRepository) Create(ctx context.Context, token types.CsrfToken) (types.CsrfToken, error) {
	now := time.Now()
	token.CreatedAt = now
	token.UpdatedAt = now

	const query = `
		INSERT INTO csrf_tokens (ip, expired_at, used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, token.IP, token.ExpiredAt, token.Used, token.CreatedAt, token.UpdatedAt).Scan(&token.ID); err != nil {
		return types.CsrfToken{}, err
	}
	return token, nil
}

// GetForUpdate loads the token and locks its row until the transaction ends.
func (r *CsrfTokenRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (types.CsrfToken, error) {
	const query = `
		SELECT id, ip, expired_at, used, created_at, updated_at
		FROM csrf_tokens
		WHERE id = $1
		FOR UPDATE`
	var token types.CsrfToken
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.IP,
		&token.ExpiredAt,
		&token.Used,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CsrfToken{}, ErrNotFound
		}
		return types.CsrfToken{}, err
	}
	return token, nil
}

func (r *CsrfTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE csrf_tokens SET used = TRUE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// DeleteStale removes tokens that expired before cutoff.
func (r *CsrfTokenRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE expired_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
