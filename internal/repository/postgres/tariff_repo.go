package postgres

import (
	"context"

	"github.com/and161185/clubpay/internal/model"
)

// TariffRepo implements TariffRepository using PostgreSQL.
type TariffRepo struct{ db *DB }

// NewTariffRepo constructs a tariff repository.
func NewTariffRepo(db *DB) *TariffRepo { return &TariffRepo{db: db} }

// ActiveTariffs lists active tariffs. Numeric columns are scanned into untyped
// values and decoded by the caller.
func (r *TariffRepo) ActiveTariffs(ctx context.Context) ([]model.RawTariff, error) {
	const q = `
SELECT id, name, description, type, price, duration_minutes, hourly_rate
FROM tariffs
WHERE is_active
ORDER BY type, duration_minutes`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawTariff
	for rows.Next() {
		var t model.RawTariff
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Type, &t.Price, &t.DurationMinutes, &t.HourlyRate); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
