package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetcalc/api/internal/models"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

const subscriptionColumns = `id, account_id, plan_name, price, duration_days, starts_at, ends_at, is_active, created_at`

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(r.pool.QueryRow(ctx, query, id))
}

// Activate replaces the account's active subscription in one transaction.
// build receives the subscription being replaced (nil when there is none)
// and returns the record to insert.
func (r *SubscriptionRepository) Activate(
	ctx context.Context,
	accountID string,
	build func(previous *models.Subscription) models.Subscription,
) (models.Subscription, error) {
	var created models.Subscription

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockAccount(ctx, tx, accountID); err != nil {
			return err
		}

		var previous *models.Subscription
		current, err := scanSubscription(tx.QueryRow(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE account_id = $1 AND is_active`, accountID))
		switch {
		case err == nil:
			previous = &current
		case !errors.Is(err, ErrSubscriptionNotFound):
			return err
		}

		created = build(previous)

		if previous != nil {
			if _, err := tx.Exec(ctx, `UPDATE subscriptions SET is_active = FALSE WHERE id = $1`, previous.ID); err != nil {
				return err
			}
		}

		const insert = `
			INSERT INTO subscriptions (
				id, account_id, plan_name, price, duration_days, starts_at, ends_at, is_active, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, TRUE, $8
			)
		`
		if _, err := tx.Exec(ctx, insert,
			created.ID,
			accountID,
			created.PlanName,
			created.Price,
			created.DurationDays,
			created.StartsAt,
			created.EndsAt,
			created.CreatedAt,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE accounts SET subscription_id = $2, updated_at = NOW() WHERE id = $1`, accountID, created.ID)
		return err
	})
	if err != nil {
		return models.Subscription{}, err
	}

	created.AccountID = accountID
	created.IsActive = true
	return created, nil
}

func (r *SubscriptionRepository) CreatePurchase(ctx context.Context, purchase models.DevicePurchase) error {
	const query = `
		INSERT INTO device_purchases (
			id, account_id, subscription_id, additional_devices, unit_price, total_price, end_date, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`
	_, err := r.pool.Exec(ctx, query,
		purchase.ID,
		purchase.AccountID,
		purchase.SubscriptionID,
		purchase.AdditionalDevices,
		purchase.UnitPrice,
		purchase.TotalPrice,
		purchase.EndDate,
		purchase.CreatedAt,
	)
	return err
}

// ListActivePurchases returns add-ons whose validity window still covers now.
func (r *SubscriptionRepository) ListActivePurchases(ctx context.Context, accountID string, now time.Time) ([]models.DevicePurchase, error) {
	const query = `
		SELECT id, account_id, subscription_id, additional_devices, unit_price, total_price, end_date, created_at
		FROM device_purchases
		WHERE account_id = $1 AND end_date > $2
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []models.DevicePurchase
	for rows.Next() {
		var p models.DevicePurchase
		if err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&p.SubscriptionID,
			&p.AdditionalDevices,
			&p.UnitPrice,
			&p.TotalPrice,
			&p.EndDate,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var sub models.Subscription
	if err := row.Scan(
		&sub.ID,
		&sub.AccountID,
		&sub.PlanName,
		&sub.Price,
		&sub.DurationDays,
		&sub.StartsAt,
		&sub.EndsAt,
		&sub.IsActive,
		&sub.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, ErrSubscriptionNotFound
		}
		return models.Subscription{}, err
	}
	return sub, nil
}
