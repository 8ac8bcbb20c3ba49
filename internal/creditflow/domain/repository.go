package creditflow

import (
	"context"

	"github.com/shopspring/decimal"
)

// HistoryRepository loads a unit's running-balance ledger and its
// independently persisted credit history.
type HistoryRepository interface {
	OpeningBalance(ctx context.Context, unitID string) (decimal.Decimal, error)
	// ListLineItems returns the ledger in chronological order.
	ListLineItems(ctx context.Context, unitID string) ([]LineItem, error)
	ListPersistedEvents(ctx context.Context, unitID string) ([]PersistedEntry, error)
	// ListUnitIDs returns every unit with a ledger, for whole-portfolio runs.
	ListUnitIDs(ctx context.Context) ([]string, error)
}
