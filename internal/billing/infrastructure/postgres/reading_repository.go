package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	billing "sams-billing/internal/billing/domain"
)

const defaultReadingsTable = "water_meter_readings"

// ReadingRepository is a Postgres implementation of the reading store.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with defaults.
func NewReadingRepository(db *sql.DB, opts ...ReadingOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ReadingOption configures the repository.
type ReadingOption func(*ReadingRepository)

// WithReadingsTable overrides the default table.
func WithReadingsTable(table string) ReadingOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// GetReading loads the reading for a unit and period; (nil, nil) when absent.
func (r *ReadingRepository) GetReading(ctx context.Context, unitID string, period billing.PeriodKey) (*billing.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if unitID == "" {
		return nil, billing.ErrEmptyUnitID
	}

	query := fmt.Sprintf(`
SELECT unit_id, period, value, recorded_at
FROM %s
WHERE unit_id = $1 AND period = $2`, r.table)

	var reading billing.MeterReading
	var rawPeriod string
	var recordedAt time.Time
	err := r.db.QueryRowContext(ctx, query, unitID, period.String()).
		Scan(&reading.UnitID, &rawPeriod, &reading.Value, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	key, err := billing.ParsePeriodKey(rawPeriod)
	if err != nil {
		return nil, err
	}
	reading.Period = key
	reading.RecordedAt = recordedAt.UTC()
	return &reading, nil
}

// ListReadings loads the readings present for the given periods.
func (r *ReadingRepository) ListReadings(ctx context.Context, unitID string, periods []billing.PeriodKey) (map[billing.PeriodKey]*billing.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if unitID == "" {
		return nil, billing.ErrEmptyUnitID
	}

	raw := make([]string, 0, len(periods))
	for _, period := range periods {
		raw = append(raw, period.String())
	}

	query := fmt.Sprintf(`
SELECT unit_id, period, value, recorded_at
FROM %s
WHERE unit_id = $1 AND period = ANY($2)
ORDER BY period ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, unitID, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[billing.PeriodKey]*billing.MeterReading, len(periods))
	for rows.Next() {
		var reading billing.MeterReading
		var rawPeriod string
		var recordedAt time.Time
		if err := rows.Scan(&reading.UnitID, &rawPeriod, &reading.Value, &recordedAt); err != nil {
			return nil, err
		}
		key, err := billing.ParsePeriodKey(rawPeriod)
		if err != nil {
			return nil, err
		}
		reading.Period = key
		reading.RecordedAt = recordedAt.UTC()
		copy := reading
		out[key] = &copy
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
