package creditflow

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deriver reconstructs discrete credit events from a running-balance
// ledger. No explicit "credit applied" line item is required: charges
// settle outstanding credit silently, and the sign/magnitude transition of
// the running balance is sufficient to recover the full credit history.
type Deriver struct {
	threshold decimal.Decimal
}

// NewDeriver constructs a Deriver. Events at or below the threshold are
// treated as rounding noise and dropped.
func NewDeriver(threshold decimal.Decimal) Deriver {
	if threshold.IsNegative() {
		threshold = decimal.Zero
	}
	return Deriver{threshold: threshold}
}

// Derive walks the ledger once in chronological order and emits the
// implied credit events.
func (d Deriver) Derive(unitID string, opening decimal.Decimal, items []LineItem) ([]CreditEvent, error) {
	if unitID == "" {
		return nil, ErrEmptyUnitID
	}
	if err := ValidateChronology(items); err != nil {
		return nil, err
	}

	var events []CreditEvent
	prev := opening
	for _, item := range items {
		// A charge against a negative balance consumes held credit.
		if prev.IsNegative() && item.Charge.IsPositive() {
			used := decimal.Min(prev.Abs(), item.Charge)
			if used.GreaterThan(d.threshold) {
				events = append(events, CreditEvent{
					ID:                uuid.New(),
					UnitID:            unitID,
					Date:              item.Date,
					Type:              EventCreditUsed,
					Amount:            used,
					SourceDescription: item.Description,
				})
			}
		}
		// A payment driving the balance negative creates credit. If the
		// balance was already negative, only the increase in magnitude is
		// new credit.
		if item.Payment.IsPositive() && item.Balance.IsNegative() {
			added := item.Balance.Abs()
			if prev.IsNegative() {
				added = added.Sub(prev.Abs())
			}
			if added.GreaterThan(d.threshold) {
				events = append(events, CreditEvent{
					ID:                uuid.New(),
					UnitID:            unitID,
					Date:              item.Date,
					Type:              EventCreditAdded,
					Amount:            added,
					SourceDescription: item.Description,
				})
			}
		}
		prev = item.Balance
	}
	return events, nil
}
