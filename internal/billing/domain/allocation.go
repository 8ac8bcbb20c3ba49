package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AllocationPolicy carries the configured allocation parameters.
type AllocationPolicy struct {
	// UnitRate is the consumption charge per unit.
	UnitRate decimal.Decimal
	// ToleranceUnits is the largest readings-vs-bill consumption gap that
	// is still considered fixable. A gap of exactly this size is fixable.
	ToleranceUnits int64
	// ChargeTolerance is the monetary threshold below which a computed
	// discrepancy is treated as noise.
	ChargeTolerance decimal.Decimal
}

// AllocationOutcome classifies an allocation attempt.
type AllocationOutcome int

const (
	// OutcomeNoChange means the existing breakdown already matches.
	OutcomeNoChange AllocationOutcome = iota
	// OutcomeCorrected means a corrected breakdown was produced.
	OutcomeCorrected
	// OutcomeUnfixable means the discrepancy exceeds tolerance and needs
	// manual review.
	OutcomeUnfixable
)

// String returns the outcome label.
func (o AllocationOutcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "no_change"
	case OutcomeCorrected:
		return "corrected"
	case OutcomeUnfixable:
		return "unfixable"
	}
	return "unknown"
}

// AllocationInput is one unit bill's allocation request.
type AllocationInput struct {
	Breakdown        []BreakdownEntry
	TotalConsumption int64
	TotalCharge      decimal.Decimal
	// Consumption holds the readings-derived consumption per sub-period.
	Consumption map[PeriodKey]ConsumptionResult
	Policy      AllocationPolicy
}

// AllocationResult is the outcome of an allocation attempt.
type AllocationResult struct {
	Outcome   AllocationOutcome
	Strategy  string
	Breakdown []BreakdownEntry
	Reason    string
}

// AllocationStrategy produces a corrected breakdown, or reports that it is
// not applicable to the input so the next strategy can be tried.
type AllocationStrategy interface {
	Name() string
	Allocate(in AllocationInput) (AllocationResult, bool)
}

// DefaultStrategies returns the allocation strategy chain in priority
// order. Fallback strategies redistribute without readings and are only
// included when enabled.
func DefaultStrategies(fallback bool) []AllocationStrategy {
	strategies := []AllocationStrategy{readingsStrategy{}}
	if fallback {
		strategies = append(strategies, chargeRatioStrategy{}, evenSplitStrategy{})
	}
	return strategies
}

// Allocate evaluates the strategy chain in order and returns the first
// applicable result.
func Allocate(in AllocationInput, strategies []AllocationStrategy) AllocationResult {
	for _, s := range strategies {
		if result, ok := s.Allocate(in); ok {
			result.Strategy = s.Name()
			return result
		}
	}
	return AllocationResult{
		Outcome: OutcomeUnfixable,
		Reason:  "no allocation strategy applicable",
	}
}

// readingsStrategy allocates from readings-derived consumption, treating
// readings as ground truth and the bill totals as authoritative sums.
type readingsStrategy struct{}

func (readingsStrategy) Name() string { return "readings" }

func (readingsStrategy) Allocate(in AllocationInput) (AllocationResult, bool) {
	values := make([]int64, len(in.Breakdown))
	var readingsTotal int64
	for i, entry := range in.Breakdown {
		result, ok := in.Consumption[entry.Period]
		if !ok || result.Missing || result.Anomaly {
			return AllocationResult{}, false
		}
		values[i] = result.Value
		readingsTotal += result.Value
	}
	if len(values) == 0 {
		return AllocationResult{}, false
	}

	diff := readingsTotal - in.TotalConsumption
	if abs64(diff) > in.Policy.ToleranceUnits {
		return AllocationResult{
			Outcome: OutcomeUnfixable,
			Reason: fmt.Sprintf("readings total %d vs billed %d exceeds tolerance of %d units",
				readingsTotal, in.TotalConsumption, in.Policy.ToleranceUnits),
		}, true
	}

	if diff != 0 {
		if readingsTotal == 0 {
			// Nothing to scale against; let a fallback spread the total.
			return AllocationResult{}, false
		}
		values = scaleLargestRemainder(values, readingsTotal, in.TotalConsumption)
	}
	return finishAllocation(in, values), true
}

// chargeRatioStrategy redistributes the billed consumption total in
// proportion to the existing charge split. Used when readings are
// incomplete but the original charges carry a usable shape.
type chargeRatioStrategy struct{}

func (chargeRatioStrategy) Name() string { return "charge_ratio" }

func (chargeRatioStrategy) Allocate(in AllocationInput) (AllocationResult, bool) {
	if len(in.Breakdown) == 0 {
		return AllocationResult{}, false
	}
	weightTotal := decimal.Zero
	for _, entry := range in.Breakdown {
		if entry.Charge.IsNegative() {
			return AllocationResult{}, false
		}
		weightTotal = weightTotal.Add(entry.Charge)
	}
	if !weightTotal.IsPositive() {
		return AllocationResult{}, false
	}

	total := decimal.NewFromInt(in.TotalConsumption)
	values := make([]int64, len(in.Breakdown))
	var sum int64
	largest := 0
	for i, entry := range in.Breakdown {
		values[i] = total.Mul(entry.Charge).Div(weightTotal).Round(0).IntPart()
		sum += values[i]
		if entry.Charge.GreaterThan(in.Breakdown[largest].Charge) {
			largest = i
		}
	}
	values[largest] += in.TotalConsumption - sum
	return finishAllocation(in, values), true
}

// evenSplitStrategy spreads the billed total evenly, remainder to the
// earliest sub-periods. Last resort.
type evenSplitStrategy struct{}

func (evenSplitStrategy) Name() string { return "even_split" }

func (evenSplitStrategy) Allocate(in AllocationInput) (AllocationResult, bool) {
	n := int64(len(in.Breakdown))
	if n == 0 {
		return AllocationResult{}, false
	}
	base := in.TotalConsumption / n
	rem := in.TotalConsumption - base*n
	values := make([]int64, n)
	for i := range values {
		values[i] = base
		if rem > 0 {
			values[i]++
			rem--
		} else if rem < 0 {
			values[i]--
			rem++
		}
	}
	return finishAllocation(in, values), true
}

// finishAllocation builds the corrected entries for the given consumption
// values, recomputes charges, and classifies the result against the
// existing breakdown.
func finishAllocation(in AllocationInput, values []int64) AllocationResult {
	entries := cloneEntries(in.Breakdown)
	for i := range entries {
		entries[i].Consumption = values[i]
	}
	recomputeCharges(entries, in.TotalCharge, in.Policy.UnitRate)

	if equalEntries(entries, in.Breakdown) {
		return AllocationResult{Outcome: OutcomeNoChange, Breakdown: entries}
	}
	return AllocationResult{Outcome: OutcomeCorrected, Breakdown: entries}
}

// scaleLargestRemainder scales values so they sum to target, rounding each
// to the nearest unit and assigning the rounding remainder to the
// sub-period with the largest original value.
func scaleLargestRemainder(values []int64, valuesTotal, target int64) []int64 {
	scaled := make([]int64, len(values))
	total := decimal.NewFromInt(target)
	divisor := decimal.NewFromInt(valuesTotal)
	var sum int64
	largest := 0
	for i, v := range values {
		scaled[i] = decimal.NewFromInt(v).Mul(total).Div(divisor).Round(0).IntPart()
		sum += scaled[i]
		if v > values[largest] {
			largest = i
		}
	}
	scaled[largest] += target - sum
	return scaled
}

// recomputeCharges prices each entry at the unit rate and reconciles the
// charge sum to the authoritative total: the residual is distributed in
// proportion to consumption, leftover cents to the largest sub-period.
// OtherCharges are left untouched.
func recomputeCharges(entries []BreakdownEntry, totalCharge, unitRate decimal.Decimal) {
	chargeSum := decimal.Zero
	for i := range entries {
		entries[i].Charge = unitRate.Mul(decimal.NewFromInt(entries[i].Consumption)).Round(2)
		chargeSum = chargeSum.Add(entries[i].Charge)
	}
	residual := totalCharge.Sub(chargeSum)
	if residual.IsZero() {
		return
	}

	var consumptionSum int64
	largest := -1
	for i := range entries {
		if entries[i].Consumption == 0 {
			continue
		}
		consumptionSum += entries[i].Consumption
		if largest < 0 || entries[i].Consumption > entries[largest].Consumption {
			largest = i
		}
	}
	if largest < 0 || consumptionSum == 0 {
		entries[0].Charge = entries[0].Charge.Add(residual)
		return
	}

	divisor := decimal.NewFromInt(consumptionSum)
	assigned := decimal.Zero
	for i := range entries {
		if entries[i].Consumption == 0 {
			continue
		}
		share := residual.Mul(decimal.NewFromInt(entries[i].Consumption)).Div(divisor).Round(2)
		entries[i].Charge = entries[i].Charge.Add(share)
		assigned = assigned.Add(share)
	}
	leftover := residual.Sub(assigned)
	if !leftover.IsZero() {
		entries[largest].Charge = entries[largest].Charge.Add(leftover)
	}
}

func equalEntries(a, b []BreakdownEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Period != b[i].Period ||
			a[i].Consumption != b[i].Consumption ||
			!a[i].Charge.Equal(b[i].Charge) ||
			!a[i].OtherCharges.Equal(b[i].OtherCharges) {
			return false
		}
	}
	return true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
