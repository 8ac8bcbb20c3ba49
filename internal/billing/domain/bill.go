package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillID is the identity of a unit bill aggregate.
type BillID string

// BreakdownShape records the persisted representation of a breakdown; the
// store historically wrote both list and period-keyed-object forms.
type BreakdownShape string

const (
	// BreakdownShapeList is the ordered-array persisted form.
	BreakdownShapeList BreakdownShape = "list"
	// BreakdownShapeKeyed is the period-keyed-object persisted form.
	BreakdownShapeKeyed BreakdownShape = "keyed"
)

// BreakdownEntry is one sub-period line of a unit bill.
type BreakdownEntry struct {
	Period      PeriodKey
	Consumption int64
	Charge      decimal.Decimal
	// OtherCharges carries ancillary service charges. Never recomputed by
	// allocation; preserved verbatim.
	OtherCharges decimal.Decimal
}

// Payment is a recorded payment against a unit bill.
type Payment struct {
	Amount decimal.Decimal
	Date   time.Time
}

// BuildBillID builds the aggregate identity from unit and cycle.
func BuildBillID(unitID string, cycle BillingCycle) (BillID, error) {
	if unitID == "" {
		return "", ErrEmptyUnitID
	}
	if err := cycle.Validate(); err != nil {
		return "", err
	}
	return BillID(unitID + "|" + cycle.ID()), nil
}

// UnitBill is the per-unit slice of a quarterly billing document.
// Identity: unit id + cycle.
type UnitBill struct {
	id     BillID
	unitID string
	cycle  BillingCycle

	totalConsumption int64
	totalCharge      decimal.Decimal
	breakdown        []BreakdownEntry
	payments         []Payment

	shape BreakdownShape
	isNew bool
}

// NewUnitBill creates a new unit bill aggregate for a cycle.
func NewUnitBill(unitID string, cycle BillingCycle) (*UnitBill, error) {
	id, err := BuildBillID(unitID, cycle)
	if err != nil {
		return nil, err
	}
	return &UnitBill{
		id:     id,
		unitID: unitID,
		cycle:  cycle,
		shape:  BreakdownShapeList,
		isNew:  true,
	}, nil
}

// SetTotals sets the authoritative bill totals.
func (b *UnitBill) SetTotals(consumption int64, charge decimal.Decimal) {
	b.totalConsumption = consumption
	b.totalCharge = charge
}

// SetBreakdown replaces the ordered breakdown without a settlement guard.
// Intended for rehydration; corrections go through ApplyCorrection.
func (b *UnitBill) SetBreakdown(entries []BreakdownEntry) {
	b.breakdown = cloneEntries(entries)
}

// AddPayment records a payment against the bill.
func (b *UnitBill) AddPayment(p Payment) {
	b.payments = append(b.payments, p)
}

// ApplyCorrection replaces the breakdown with a corrected allocation. The
// corrected entries must sum exactly to the bill totals, and a settled bill
// is never mutated regardless of correction confidence.
func (b *UnitBill) ApplyCorrection(entries []BreakdownEntry) error {
	if b.IsSettled() {
		return ErrBillSettled
	}
	var consumption int64
	charge := decimal.Zero
	for _, e := range entries {
		consumption += e.Consumption
		charge = charge.Add(e.Charge)
	}
	if consumption != b.totalConsumption || !charge.Equal(b.totalCharge) {
		return ErrAllocationMismatch
	}
	b.breakdown = cloneEntries(entries)
	return nil
}

// ID returns the aggregate identity.
func (b *UnitBill) ID() BillID { return b.id }

// UnitID returns the unit id.
func (b *UnitBill) UnitID() string { return b.unitID }

// Cycle returns the billing cycle.
func (b *UnitBill) Cycle() BillingCycle { return b.cycle }

// TotalConsumption returns the authoritative consumption total.
func (b *UnitBill) TotalConsumption() int64 { return b.totalConsumption }

// TotalCharge returns the authoritative consumption-charge total.
func (b *UnitBill) TotalCharge() decimal.Decimal { return b.totalCharge }

// Breakdown returns a copy of the ordered breakdown.
func (b *UnitBill) Breakdown() []BreakdownEntry { return cloneEntries(b.breakdown) }

// Payments returns a copy of the recorded payments.
func (b *UnitBill) Payments() []Payment {
	out := make([]Payment, len(b.payments))
	copy(out, b.payments)
	return out
}

// PaidAmount returns the sum of recorded payments.
func (b *UnitBill) PaidAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.payments {
		total = total.Add(p.Amount)
	}
	return total
}

// IsSettled reports whether the bill is fully paid.
func (b *UnitBill) IsSettled() bool {
	return b.totalCharge.IsPositive() && b.PaidAmount().GreaterThanOrEqual(b.totalCharge)
}

// AllocationDrift returns the signed differences between the breakdown sums
// and the bill totals (consumption units, charge).
func (b *UnitBill) AllocationDrift() (int64, decimal.Decimal) {
	var consumption int64
	charge := decimal.Zero
	for _, e := range b.breakdown {
		consumption += e.Consumption
		charge = charge.Add(e.Charge)
	}
	return consumption - b.totalConsumption, charge.Sub(b.totalCharge)
}

// Shape returns the persisted breakdown shape.
func (b *UnitBill) Shape() BreakdownShape { return b.shape }

// MarkShape records the persisted breakdown shape observed at load time so
// a write can restore it.
func (b *UnitBill) MarkShape(s BreakdownShape) {
	if s == BreakdownShapeKeyed {
		b.shape = BreakdownShapeKeyed
		return
	}
	b.shape = BreakdownShapeList
}

// IsNew reports whether the aggregate was freshly created.
func (b *UnitBill) IsNew() bool { return b.isNew }

// MarkPersisted marks the aggregate as persisted.
func (b *UnitBill) MarkPersisted() {
	if b != nil {
		b.isNew = false
	}
}

// Clone returns a detached copy marked as persisted.
func (b *UnitBill) Clone() *UnitBill {
	if b == nil {
		return nil
	}
	copy := *b
	copy.breakdown = cloneEntries(b.breakdown)
	copy.payments = append([]Payment(nil), b.payments...)
	copy.isNew = false
	return &copy
}

func cloneEntries(entries []BreakdownEntry) []BreakdownEntry {
	out := make([]BreakdownEntry, len(entries))
	copy(out, entries)
	return out
}
