package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	billing "sams-billing/internal/billing/domain"
)

const defaultBillsTable = "unit_bills"

// BillRepository is a Postgres implementation of the bill store. A save
// patches only the breakdown; totals and payments remain the generator's.
type BillRepository struct {
	db    *sql.DB
	table string
}

// NewBillRepository constructs a repository with defaults.
func NewBillRepository(db *sql.DB, opts ...BillOption) *BillRepository {
	repo := &BillRepository{db: db, table: defaultBillsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// BillOption configures the repository.
type BillOption func(*BillRepository)

// WithBillsTable overrides the default table.
func WithBillsTable(table string) BillOption {
	return func(repo *BillRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// FindByCycle loads every unit bill in the cycle, ordered by unit id.
func (r *BillRepository) FindByCycle(ctx context.Context, cycle billing.BillingCycle) ([]*billing.UnitBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("bill repo: nil db")
	}
	if err := cycle.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT unit_id, total_consumption, total_charge, breakdown, payments
FROM %s
WHERE cycle = $1
ORDER BY unit_id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, cycle.ID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []*billing.UnitBill
	for rows.Next() {
		bill, err := scanBill(rows, cycle)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bills, nil
}

// FindByUnitAndCycle loads one unit bill; (nil, nil) when absent.
func (r *BillRepository) FindByUnitAndCycle(ctx context.Context, unitID string, cycle billing.BillingCycle) (*billing.UnitBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("bill repo: nil db")
	}
	if unitID == "" {
		return nil, billing.ErrEmptyUnitID
	}
	if err := cycle.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT unit_id, total_consumption, total_charge, breakdown, payments
FROM %s
WHERE cycle = $1 AND unit_id = $2`, r.table)

	row := r.db.QueryRowContext(ctx, query, cycle.ID(), unitID)
	bill, err := scanBill(row, cycle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// Save writes the bill's corrected breakdown back in its original persisted
// shape. The settled guard lives in the aggregate; the repository refuses
// bills it has never seen.
func (r *BillRepository) Save(ctx context.Context, bill *billing.UnitBill) error {
	if r == nil || r.db == nil {
		return errors.New("bill repo: nil db")
	}
	if bill == nil {
		return billing.ErrNilBill
	}

	raw, err := encodeBreakdown(bill.Breakdown(), bill.Shape())
	if err != nil {
		return fmt.Errorf("encode breakdown for %s: %w", bill.ID(), err)
	}

	query := fmt.Sprintf(`
UPDATE %s
SET breakdown = $1, updated_at = now()
WHERE cycle = $2 AND unit_id = $3`, r.table)

	result, err := r.db.ExecContext(ctx, query, raw, bill.Cycle().ID(), bill.UnitID())
	if err != nil {
		return fmt.Errorf("save bill %s: %w", bill.ID(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrBillNotFound
	}
	bill.MarkPersisted()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner, cycle billing.BillingCycle) (*billing.UnitBill, error) {
	var unitID string
	var totalConsumption int64
	var totalCharge decimal.Decimal
	var rawBreakdown, rawPayments []byte
	if err := row.Scan(&unitID, &totalConsumption, &totalCharge, &rawBreakdown, &rawPayments); err != nil {
		return nil, err
	}

	entries, shape, err := decodeBreakdown(rawBreakdown)
	if err != nil {
		return nil, fmt.Errorf("decode breakdown for %s: %w", unitID, err)
	}
	payments, err := decodePayments(rawPayments)
	if err != nil {
		return nil, fmt.Errorf("decode payments for %s: %w", unitID, err)
	}

	bill, err := billing.NewUnitBill(unitID, cycle)
	if err != nil {
		return nil, err
	}
	bill.SetTotals(totalConsumption, totalCharge)
	bill.SetBreakdown(entries)
	for _, payment := range payments {
		bill.AddPayment(payment)
	}
	bill.MarkShape(shape)
	bill.MarkPersisted()
	return bill, nil
}
