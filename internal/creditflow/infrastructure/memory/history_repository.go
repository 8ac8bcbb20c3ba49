package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	creditflow "sams-billing/internal/creditflow/domain"
)

type unitLedger struct {
	opening   decimal.Decimal
	items     []creditflow.LineItem
	persisted []creditflow.PersistedEntry
}

// HistoryRepository is an in-memory ledger store.
type HistoryRepository struct {
	mu    sync.RWMutex
	units map[string]*unitLedger
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{units: make(map[string]*unitLedger)}
}

// PutLedger sets a unit's opening balance and line items.
func (r *HistoryRepository) PutLedger(unitID string, opening decimal.Decimal, items []creditflow.LineItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ledger := r.ledger(unitID)
	ledger.opening = opening
	ledger.items = append([]creditflow.LineItem(nil), items...)
}

// PutPersisted sets a unit's persisted credit history.
func (r *HistoryRepository) PutPersisted(unitID string, entries []creditflow.PersistedEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger(unitID).persisted = append([]creditflow.PersistedEntry(nil), entries...)
}

func (r *HistoryRepository) ledger(unitID string) *unitLedger {
	ledger := r.units[unitID]
	if ledger == nil {
		ledger = &unitLedger{}
		r.units[unitID] = ledger
	}
	return ledger
}

// OpeningBalance returns the unit's opening balance.
func (r *HistoryRepository) OpeningBalance(ctx context.Context, unitID string) (decimal.Decimal, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	ledger := r.units[unitID]
	if ledger == nil {
		return decimal.Decimal{}, creditflow.ErrUnitNotFound
	}
	return ledger.opening, nil
}

// ListLineItems returns the unit's ledger in chronological order.
func (r *HistoryRepository) ListLineItems(ctx context.Context, unitID string) ([]creditflow.LineItem, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	ledger := r.units[unitID]
	if ledger == nil {
		return nil, creditflow.ErrUnitNotFound
	}
	return append([]creditflow.LineItem(nil), ledger.items...), nil
}

// ListPersistedEvents returns the unit's stored credit history.
func (r *HistoryRepository) ListPersistedEvents(ctx context.Context, unitID string) ([]creditflow.PersistedEntry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	ledger := r.units[unitID]
	if ledger == nil {
		return nil, creditflow.ErrUnitNotFound
	}
	return append([]creditflow.PersistedEntry(nil), ledger.persisted...), nil
}

// ListUnitIDs returns every unit with a ledger, sorted.
func (r *HistoryRepository) ListUnitIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
