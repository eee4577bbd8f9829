package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetcalc/api/internal/models"
)

var ErrDeviceNotFound = errors.New("device not found")

const deviceColumns = `id, account_id, fingerprint, name, device_type, last_used_at, created_at`

// AdmitFunc inspects the devices already registered to an account and
// returns a non-nil error to refuse the registration.
type AdmitFunc func(registered []models.Device) error

type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// ListByAccount returns the account's devices, most recently used first.
func (r *DeviceRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Device, error) {
	return listDevices(ctx, r.pool, accountID)
}

// Upsert registers device for its account or refreshes LastUsedAt when the
// fingerprint is already known. admit runs under the account row lock, so
// the registered set it sees cannot change before the write commits.
func (r *DeviceRepository) Upsert(ctx context.Context, device models.Device, admit AdmitFunc) (models.Device, error) {
	var saved models.Device

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockAccount(ctx, tx, device.AccountID); err != nil {
			return err
		}

		registered, err := listDevices(ctx, tx, device.AccountID)
		if err != nil {
			return err
		}
		if err := admit(registered); err != nil {
			return err
		}

		query := `
			INSERT INTO devices (id, account_id, fingerprint, name, device_type, last_used_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (account_id, fingerprint)
			DO UPDATE SET
				last_used_at = EXCLUDED.last_used_at,
				name = COALESCE(NULLIF(EXCLUDED.name, ''), devices.name)
			RETURNING ` + deviceColumns

		saved, err = scanDevice(tx.QueryRow(ctx, query,
			device.ID,
			device.AccountID,
			device.Fingerprint,
			device.Name,
			device.Type,
			device.LastUsedAt,
		))
		return err
	})
	if err != nil {
		return models.Device{}, err
	}
	return saved, nil
}

// Delete removes one device. Refresh sessions bound to it go with it
// through the auth_sessions foreign key.
func (r *DeviceRepository) Delete(ctx context.Context, accountID string, deviceID string) error {
	const query = `DELETE FROM devices WHERE account_id = $1 AND id = $2`
	cmd, err := r.pool.Exec(ctx, query, accountID, deviceID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listDevices(ctx context.Context, q querier, accountID string) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE account_id = $1
		ORDER BY last_used_at DESC`

	rows, err := q.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func scanDevice(row pgx.Row) (models.Device, error) {
	var device models.Device
	if err := row.Scan(
		&device.ID,
		&device.AccountID,
		&device.Fingerprint,
		&device.Name,
		&device.Type,
		&device.LastUsedAt,
		&device.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, ErrDeviceNotFound
		}
		return models.Device{}, err
	}
	return device, nil
}
