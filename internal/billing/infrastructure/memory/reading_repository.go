package memory

import (
	"context"
	"sync"

	billing "sams-billing/internal/billing/domain"
)

// ReadingRepository is an in-memory reading store.
type ReadingRepository struct {
	mu   sync.RWMutex
	data map[string]map[billing.PeriodKey]billing.MeterReading
}

// NewReadingRepository constructs the repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{data: make(map[string]map[billing.PeriodKey]billing.MeterReading)}
}

// Put records a reading.
func (r *ReadingRepository) Put(reading billing.MeterReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unit := r.data[reading.UnitID]
	if unit == nil {
		unit = make(map[billing.PeriodKey]billing.MeterReading)
		r.data[reading.UnitID] = unit
	}
	unit[reading.Period] = reading
}

// GetReading returns the reading for a unit and period, or nil when absent.
func (r *ReadingRepository) GetReading(ctx context.Context, unitID string, period billing.PeriodKey) (*billing.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reading, ok := r.data[unitID][period]; ok {
		copy := reading
		return &copy, nil
	}
	return nil, nil
}

// ListReadings returns the readings present for the given periods. Absent
// periods are simply missing from the map.
func (r *ReadingRepository) ListReadings(ctx context.Context, unitID string, periods []billing.PeriodKey) (map[billing.PeriodKey]*billing.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[billing.PeriodKey]*billing.MeterReading, len(periods))
	for _, period := range periods {
		if reading, ok := r.data[unitID][period]; ok {
			copy := reading
			out[period] = &copy
		}
	}
	return out, nil
}
