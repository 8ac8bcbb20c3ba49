package billing

import "context"

// ReadingRepository supplies meter readings keyed by unit and period.
// A missing reading is reported as (nil, nil).
type ReadingRepository interface {
	GetReading(ctx context.Context, unitID string, period PeriodKey) (*MeterReading, error)
	ListReadings(ctx context.Context, unitID string, periods []PeriodKey) (map[PeriodKey]*MeterReading, error)
}

// BillRepository persists unit bill aggregates.
type BillRepository interface {
	FindByCycle(ctx context.Context, cycle BillingCycle) ([]*UnitBill, error)
	FindByUnitAndCycle(ctx context.Context, unitID string, cycle BillingCycle) (*UnitBill, error)
	Save(ctx context.Context, bill *UnitBill) error
}
