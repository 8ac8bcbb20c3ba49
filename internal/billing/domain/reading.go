package billing

import "time"

// MeterReading is the meter value recorded for a unit at the end of a
// sub-period. Readings are immutable once recorded.
type MeterReading struct {
	UnitID     string
	Period     PeriodKey
	Value      int64
	RecordedAt time.Time
}

// ConsumptionResult is the outcome of deriving one sub-period's consumption
// from a reading and its chronological predecessor.
type ConsumptionResult struct {
	Value int64
	// Missing reports that either reading was absent; Value is meaningless.
	Missing bool
	// Anomaly reports a negative result (meter reset or data error). The
	// raw value is kept; clamping is the caller's policy.
	Anomaly bool
}

// Consumption derives a sub-period's consumption from the current reading
// and its predecessor. A negative difference is returned unclamped with the
// anomaly flag set.
func Consumption(current, prior *MeterReading) ConsumptionResult {
	if current == nil || prior == nil {
		return ConsumptionResult{Missing: true}
	}
	value := current.Value - prior.Value
	return ConsumptionResult{Value: value, Anomaly: value < 0}
}
