package billing

import (
	"fmt"
	"time"
)

// PeriodKey is the persisted representation of a monthly sub-period
// boundary, in "YYYY-MM" form.
type PeriodKey string

// NewPeriodKey builds a PeriodKey for the month containing t.
func NewPeriodKey(t time.Time) (PeriodKey, error) {
	if t.IsZero() {
		return "", ErrInvalidPeriod
	}
	return PeriodKey(t.UTC().Format("2006-01")), nil
}

// ParsePeriodKey validates a raw "YYYY-MM" string.
func ParsePeriodKey(raw string) (PeriodKey, error) {
	if _, err := time.Parse("2006-01", raw); err != nil {
		return "", ErrInvalidPeriod
	}
	return PeriodKey(raw), nil
}

// String returns the raw string for storage.
func (k PeriodKey) String() string { return string(k) }

// Start returns the first instant of the period in UTC.
func (k PeriodKey) Start() time.Time {
	t, err := time.Parse("2006-01", string(k))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Prior returns the key of the immediately preceding month. The prior
// period of a cycle's first month belongs to the previous cycle.
func (k PeriodKey) Prior() PeriodKey {
	start := k.Start()
	if start.IsZero() {
		return ""
	}
	return PeriodKey(start.AddDate(0, -1, 0).Format("2006-01"))
}

// BillingCycle identifies a quarterly billing document. A cycle comprises
// three monthly sub-periods.
type BillingCycle struct {
	Year    int
	Quarter int
}

// ParseBillingCycle parses a "YYYY-Qn" cycle id.
func ParseBillingCycle(raw string) (BillingCycle, error) {
	var c BillingCycle
	if _, err := fmt.Sscanf(raw, "%d-Q%d", &c.Year, &c.Quarter); err != nil {
		return BillingCycle{}, ErrInvalidCycle
	}
	if err := c.Validate(); err != nil {
		return BillingCycle{}, err
	}
	return c, nil
}

// Validate checks the cycle fields.
func (c BillingCycle) Validate() error {
	if c.Year < 2000 || c.Year > 2200 || c.Quarter < 1 || c.Quarter > 4 {
		return ErrInvalidCycle
	}
	return nil
}

// ID returns the canonical "YYYY-Qn" identifier.
func (c BillingCycle) ID() string {
	return fmt.Sprintf("%d-Q%d", c.Year, c.Quarter)
}

// Start returns the first instant of the cycle in UTC.
func (c BillingCycle) Start() time.Time {
	month := time.Month((c.Quarter-1)*3 + 1)
	return time.Date(c.Year, month, 1, 0, 0, 0, 0, time.UTC)
}

// SubPeriods returns the cycle's monthly sub-periods in order.
func (c BillingCycle) SubPeriods() []PeriodKey {
	start := c.Start()
	keys := make([]PeriodKey, 0, 3)
	for i := 0; i < 3; i++ {
		keys = append(keys, PeriodKey(start.AddDate(0, i, 0).Format("2006-01")))
	}
	return keys
}

// PriorPeriod returns the last sub-period of the previous cycle. The first
// sub-period's consumption requires the reading recorded for this period.
func (c BillingCycle) PriorPeriod() PeriodKey {
	return c.SubPeriods()[0].Prior()
}

// Prev returns the previous billing cycle.
func (c BillingCycle) Prev() BillingCycle {
	if c.Quarter == 1 {
		return BillingCycle{Year: c.Year - 1, Quarter: 4}
	}
	return BillingCycle{Year: c.Year, Quarter: c.Quarter - 1}
}
