package application

import (
	"time"

	"github.com/shopspring/decimal"

	creditflow "sams-billing/internal/creditflow/domain"
)

// MatchedPair couples a derived event with its persisted counterpart.
type MatchedPair struct {
	Event creditflow.CreditEvent
	Entry creditflow.PersistedEntry
}

// ComparisonReport is the comparator output. The comparator never
// auto-merges; missing and extra rows are surfaced for human review.
type ComparisonReport struct {
	Matched []MatchedPair
	// MissingFromPersisted holds events implied by the balance history but
	// absent from the stored ledger, candidates to append.
	MissingFromPersisted []creditflow.CreditEvent
	// ExtraInPersisted holds stored entries with no corresponding derived
	// event. They may be valid manual adjustments.
	ExtraInPersisted []creditflow.PersistedEntry
}

// Comparator diffs derived credit events against a persisted history.
// Persisted entries may be timestamped at write time rather than effective
// date, so dates only need to fall within the window.
type Comparator struct {
	amountTolerance decimal.Decimal
	window          time.Duration
}

// NewComparator constructs a Comparator. Non-positive arguments fall back
// to a one-cent tolerance and a seven-day window.
func NewComparator(amountTolerance decimal.Decimal, window time.Duration) Comparator {
	if !amountTolerance.IsPositive() {
		amountTolerance = decimal.New(1, -2)
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return Comparator{amountTolerance: amountTolerance, window: window}
}

// Compare matches each derived event to at most one persisted entry of the
// same type whose amount differs by less than the tolerance and whose date
// falls within the window, preferring the nearest date.
func (c Comparator) Compare(derived []creditflow.CreditEvent, persisted []creditflow.PersistedEntry) ComparisonReport {
	var report ComparisonReport
	used := make([]bool, len(persisted))

	for _, event := range derived {
		best := -1
		var bestGap time.Duration
		for i, entry := range persisted {
			if used[i] || entry.Type != event.Type {
				continue
			}
			if entry.Amount.Sub(event.Amount).Abs().GreaterThanOrEqual(c.amountTolerance) {
				continue
			}
			gap := absDuration(entry.Date.Sub(event.Date))
			if gap > c.window {
				continue
			}
			if best < 0 || gap < bestGap {
				best = i
				bestGap = gap
			}
		}
		if best < 0 {
			report.MissingFromPersisted = append(report.MissingFromPersisted, event)
			continue
		}
		used[best] = true
		report.Matched = append(report.Matched, MatchedPair{Event: event, Entry: persisted[best]})
	}

	for i, entry := range persisted {
		if !used[i] {
			report.ExtraInPersisted = append(report.ExtraInPersisted, entry)
		}
	}
	return report
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
