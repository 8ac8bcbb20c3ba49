package creditflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType classifies a credit event.
type EventType string

const (
	// EventCreditAdded records an overpayment creating credit.
	EventCreditAdded EventType = "credit_added"
	// EventCreditUsed records a charge silently consuming held credit.
	EventCreditUsed EventType = "credit_used"
)

// CreditEvent is a discrete credit-balance event derived from the running
// balance. Amounts are always positive.
type CreditEvent struct {
	ID                uuid.UUID
	UnitID            string
	Date              time.Time
	Type              EventType
	Amount            decimal.Decimal
	SourceDescription string
}

// PersistedEntry is an independently maintained credit-history record,
// written by other parts of the system at payment/charge time. Used only
// as a comparison target, never as ground truth.
type PersistedEntry struct {
	ID     string
	UnitID string
	Date   time.Time
	Type   EventType
	Amount decimal.Decimal
	Notes  string
}
