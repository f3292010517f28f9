package store

import (
	"context"
	"database/sql"
	"time"
)

// TokenBlacklistRepository records consumed refresh tokens in postgres.
// The primary key on jti makes Revoke an atomic check-and-set.
type TokenBlacklistRepository struct {
	db *sql.DB
}

func NewTokenBlacklistRepository(db *sql.DB) *TokenBlacklistRepository {
	return &TokenBlacklistRepository{db: db}
}

// Revoke blacklists jti. It reports false when jti was already blacklisted,
// which means another caller consumed the token first.
func (r *TokenBlacklistRepository) Revoke(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error) {
	const query = `
		INSERT INTO token_blacklist (jti, user_id, expires_at, blacklisted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, jti, userID, expiresAt, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteExpired purges entries whose token has expired anyway and returns how many were removed.
func (r *TokenBlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM token_blacklist WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
