package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	billing "sams-billing/internal/billing/domain"
)

// BillRepository is an in-memory bill store. SaveErr, when set for a unit,
// makes Save fail for that unit so per-unit isolation can be exercised.
type BillRepository struct {
	mu      sync.RWMutex
	data    map[billing.BillID]*billing.UnitBill
	saveErr map[string]error
	saves   int
}

// NewBillRepository constructs the repository.
func NewBillRepository() *BillRepository {
	return &BillRepository{
		data:    make(map[billing.BillID]*billing.UnitBill),
		saveErr: make(map[string]error),
	}
}

// FailSaveFor injects a Save failure for the given unit.
func (r *BillRepository) FailSaveFor(unitID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr[unitID] = err
}

// SaveCount reports how many successful saves were performed.
func (r *BillRepository) SaveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// FindByCycle returns every unit bill in the cycle, ordered by unit id.
func (r *BillRepository) FindByCycle(ctx context.Context, cycle billing.BillingCycle) ([]*billing.UnitBill, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*billing.UnitBill
	for _, bill := range r.data {
		if bill.Cycle() == cycle {
			out = append(out, bill.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID() < out[j].UnitID() })
	return out, nil
}

// FindByUnitAndCycle returns one unit bill, or nil when absent.
func (r *BillRepository) FindByUnitAndCycle(ctx context.Context, unitID string, cycle billing.BillingCycle) (*billing.UnitBill, error) {
	_ = ctx
	id, err := billing.BuildBillID(unitID, cycle)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	bill := r.data[id]
	if bill == nil {
		return nil, nil
	}
	return bill.Clone(), nil
}

// Save persists a bill (overwrites existing).
func (r *BillRepository) Save(ctx context.Context, bill *billing.UnitBill) error {
	_ = ctx
	if bill == nil {
		return billing.ErrNilBill
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.saveErr[bill.UnitID()]; err != nil {
		return fmt.Errorf("save %s: %w", bill.ID(), err)
	}
	r.data[bill.ID()] = bill.Clone()
	r.saves++
	bill.MarkPersisted()
	return nil
}
