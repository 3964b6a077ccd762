package store

import (
	"context"
	"time"

	"github.com/adminkit/apiserver/internal/db"
)

// RevokedTokenRepository persists the ids of revoked bearer tokens.
type RevokedTokenRepository struct {
	db db.DBTX
}

func NewRevokedTokenRepository(conn db.DBTX) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: conn}
}

func (r *RevokedTokenRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	const query = `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, jti, expiresAt)
	return err
}

func (r *RevokedTokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&revoked)
	return revoked, err
}

// Purge drops entries whose token would have expired anyway.
func (r *RevokedTokenRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
