package creditflow

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one ordered entry of a unit's running-balance ledger.
// Balance is the account balance immediately after applying the item's
// charge and payment to the prior balance; a negative balance is credit
// held by the unit.
type LineItem struct {
	Date        time.Time
	Description string
	Charge      decimal.Decimal
	Payment     decimal.Decimal
	Balance     decimal.Decimal
}

// ValidateChronology checks that items are in non-decreasing date order.
func ValidateChronology(items []LineItem) error {
	for i := 1; i < len(items); i++ {
		if items[i].Date.Before(items[i-1].Date) {
			return ErrUnorderedLedger
		}
	}
	return nil
}
