package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetcalc/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO auth_sessions (
			id, account_id, device_id, refresh_token_hash, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.AccountID,
		session.DeviceID,
		session.RefreshTokenHash,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

func (r *SessionRepository) FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error) {
	const query = `
		SELECT id, account_id, device_id, refresh_token_hash, expires_at, created_at
		FROM auth_sessions
		WHERE refresh_token_hash = $1
	`
	row := r.pool.QueryRow(ctx, query, refreshHash)
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.DeviceID,
		&session.RefreshTokenHash,
		&session.ExpiresAt,
		&session.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

// DeleteByRefreshHash is idempotent: deleting an absent session is not an error.
func (r *SessionRepository) DeleteByRefreshHash(ctx context.Context, refreshHash []byte) error {
	const query = `DELETE FROM auth_sessions WHERE refresh_token_hash = $1`
	_, err := r.pool.Exec(ctx, query, refreshHash)
	return err
}

func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	const query = `DELETE FROM auth_sessions WHERE account_id = $1`
	cmd, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM auth_sessions WHERE expires_at <= $1`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
