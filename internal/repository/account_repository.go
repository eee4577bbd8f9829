package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetcalc/api/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `id, email, mobile, username, password_hash, trial_ends_at, subscription_id,
	is_active, max_devices, created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Create(ctx context.Context, account models.Account) error {
	const query = `
		INSERT INTO accounts (
			id, email, mobile, username, password_hash, trial_ends_at, is_active, max_devices, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		strings.ToLower(account.Email),
		account.Mobile,
		account.Username,
		account.PasswordHash,
		account.TrialEndsAt,
		account.IsActive,
		account.MaxDevices,
		account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateIdentifier
	}
	return err
}

// FindByIdentifier matches the email case-insensitively or the mobile number exactly.
func (r *AccountRepository) FindByIdentifier(ctx context.Context, identifier string) (models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE LOWER(email) = LOWER($1) OR mobile = $1
		LIMIT 1`

	return scanAccount(r.pool.QueryRow(ctx, query, identifier))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	query := `
		UPDATE accounts
		SET subscription_id = COALESCE($2, subscription_id),
		    is_active = COALESCE($3, is_active),
		    max_devices = COALESCE($4, max_devices),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccount(r.pool.QueryRow(ctx, query, id, patch.SubscriptionID, patch.IsActive, patch.MaxDevices))
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Mobile,
		&account.Username,
		&account.PasswordHash,
		&account.TrialEndsAt,
		&account.SubscriptionID,
		&account.IsActive,
		&account.MaxDevices,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}
