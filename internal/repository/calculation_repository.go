package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sheetcalc/api/internal/models"
)

type CalculationRepository struct {
	pool *pgxpool.Pool
}

func NewCalculationRepository(pool *pgxpool.Pool) *CalculationRepository {
	return &CalculationRepository{pool: pool}
}

func (r *CalculationRepository) Create(ctx context.Context, calc models.Calculation) error {
	const query = `
		INSERT INTO calculations (
			id, account_id, length, width, height, thickness,
			surface_area, sheet_area, material_required, wastage, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)
	`
	_, err := r.pool.Exec(ctx, query,
		calc.ID,
		calc.AccountID,
		calc.Length,
		calc.Width,
		calc.Height,
		calc.Thickness,
		calc.SurfaceArea,
		calc.SheetArea,
		calc.MaterialRequired,
		calc.Wastage,
		calc.CreatedAt,
	)
	return err
}

// ListRecent returns up to limit calculations, newest first.
func (r *CalculationRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]models.Calculation, error) {
	const query = `
		SELECT id, account_id, length, width, height, thickness,
		       surface_area, sheet_area, material_required, wastage, created_at
		FROM calculations
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calcs []models.Calculation
	for rows.Next() {
		var c models.Calculation
		if err := rows.Scan(
			&c.ID,
			&c.AccountID,
			&c.Length,
			&c.Width,
			&c.Height,
			&c.Thickness,
			&c.SurfaceArea,
			&c.SheetArea,
			&c.MaterialRequired,
			&c.Wastage,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		calcs = append(calcs, c)
	}
	return calcs, rows.Err()
}
