package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	creditflow "sams-billing/internal/creditflow/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(n int) time.Time {
	return time.Date(2026, time.January, n, 0, 0, 0, 0, time.UTC)
}

func event(n int, eventType creditflow.EventType, amount string) creditflow.CreditEvent {
	return creditflow.CreditEvent{
		UnitID: "A101",
		Date:   day(n),
		Type:   eventType,
		Amount: d(amount),
	}
}

func entry(id string, n int, eventType creditflow.EventType, amount string) creditflow.PersistedEntry {
	return creditflow.PersistedEntry{
		ID:     id,
		UnitID: "A101",
		Date:   day(n),
		Type:   eventType,
		Amount: d(amount),
	}
}

func TestCompareMatchesWithinWindow(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	// Persisted entries are often timestamped at write time, a few days
	// after the effective date.
	derived := []creditflow.CreditEvent{event(5, creditflow.EventCreditAdded, "80.00")}
	persisted := []creditflow.PersistedEntry{entry("p1", 9, creditflow.EventCreditAdded, "80.00")}

	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(report.Matched))
	}
	if len(report.MissingFromPersisted) != 0 || len(report.ExtraInPersisted) != 0 {
		t.Fatalf("unexpected discrepancies: %+v", report)
	}
}

func TestCompareOutsideWindow(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	derived := []creditflow.CreditEvent{event(5, creditflow.EventCreditAdded, "80.00")}
	persisted := []creditflow.PersistedEntry{entry("p1", 13, creditflow.EventCreditAdded, "80.00")}

	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 0 {
		t.Fatalf("matched = %d, want 0 for an 8-day gap", len(report.Matched))
	}
	if len(report.MissingFromPersisted) != 1 || len(report.ExtraInPersisted) != 1 {
		t.Fatalf("report = %+v, want one missing and one extra", report)
	}
}

func TestCompareTypeMustMatch(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	derived := []creditflow.CreditEvent{event(5, creditflow.EventCreditUsed, "80.00")}
	persisted := []creditflow.PersistedEntry{entry("p1", 5, creditflow.EventCreditAdded, "80.00")}

	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 0 {
		t.Fatal("events of different types must not match")
	}
}

func TestComparePrefersNearestDate(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	derived := []creditflow.CreditEvent{event(10, creditflow.EventCreditAdded, "50.00")}
	persisted := []creditflow.PersistedEntry{
		entry("far", 16, creditflow.EventCreditAdded, "50.00"),
		entry("near", 11, creditflow.EventCreditAdded, "50.00"),
	}

	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 1 || report.Matched[0].Entry.ID != "near" {
		t.Fatalf("report = %+v, want match against entry 'near'", report)
	}
	if len(report.ExtraInPersisted) != 1 || report.ExtraInPersisted[0].ID != "far" {
		t.Fatalf("extra = %+v, want entry 'far'", report.ExtraInPersisted)
	}
}

func TestCompareEntryMatchedAtMostOnce(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	derived := []creditflow.CreditEvent{
		event(5, creditflow.EventCreditAdded, "50.00"),
		event(6, creditflow.EventCreditAdded, "50.00"),
	}
	persisted := []creditflow.PersistedEntry{entry("p1", 5, creditflow.EventCreditAdded, "50.00")}

	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(report.Matched))
	}
	if len(report.MissingFromPersisted) != 1 {
		t.Fatalf("missing = %d, want the second event unmatched", len(report.MissingFromPersisted))
	}
}

func TestCompareAmountTolerance(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	derived := []creditflow.CreditEvent{event(5, creditflow.EventCreditAdded, "50.00")}
	persisted := []creditflow.PersistedEntry{entry("p1", 5, creditflow.EventCreditAdded, "50.05")}

	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 0 {
		t.Fatal("amounts five cents apart must not match at one-cent tolerance")
	}
}

func TestCompareAmountToleranceIsExclusive(t *testing.T) {
	comparator := NewComparator(d("0.01"), 7*24*time.Hour)

	// Amounts must differ by strictly less than the tolerance: a gap of
	// exactly one cent is a different amount, not rounding noise.
	derived := []creditflow.CreditEvent{event(5, creditflow.EventCreditAdded, "50.00")}
	persisted := []creditflow.PersistedEntry{entry("p1", 5, creditflow.EventCreditAdded, "50.01")}
	report := comparator.Compare(derived, persisted)
	if len(report.Matched) != 0 {
		t.Fatal("a gap of exactly the tolerance must not match")
	}

	persisted = []creditflow.PersistedEntry{entry("p1", 5, creditflow.EventCreditAdded, "50.005")}
	report = comparator.Compare(derived, persisted)
	if len(report.Matched) != 1 {
		t.Fatal("a sub-tolerance gap must match")
	}
}
