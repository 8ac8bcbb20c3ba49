package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	billing "sams-billing/internal/billing/domain"
	"sams-billing/internal/billing/infrastructure/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quarter() billing.BillingCycle { return billing.BillingCycle{Year: 2026, Quarter: 1} }

func testOptions() Options {
	return Options{
		Policy: billing.AllocationPolicy{
			UnitRate:        d("2.50"),
			ToleranceUnits:  5,
			ChargeTolerance: d("1.00"),
		},
	}
}

func seedReadings(readings *memory.ReadingRepository, unitID string, prior int64, values ...int64) {
	cycle := quarter()
	readings.Put(billing.MeterReading{UnitID: unitID, Period: cycle.PriorPeriod(), Value: prior})
	for i, period := range cycle.SubPeriods() {
		readings.Put(billing.MeterReading{UnitID: unitID, Period: period, Value: values[i]})
	}
}

func seedBill(t *testing.T, bills *memory.BillRepository, unitID string, totalConsumption int64, totalCharge string, consumption []int64, charges []string) {
	t.Helper()
	bill, err := billing.NewUnitBill(unitID, quarter())
	if err != nil {
		t.Fatalf("new bill: %v", err)
	}
	bill.SetTotals(totalConsumption, d(totalCharge))
	entries := make([]billing.BreakdownEntry, len(consumption))
	for i, period := range quarter().SubPeriods() {
		entries[i] = billing.BreakdownEntry{Period: period, Consumption: consumption[i], Charge: d(charges[i])}
	}
	bill.SetBreakdown(entries)
	if err := bills.Save(context.Background(), bill); err != nil {
		t.Fatalf("seed bill: %v", err)
	}
}

func newService(t *testing.T, readings *memory.ReadingRepository, bills *memory.BillRepository, opts Options) *ReconcileService {
	t.Helper()
	service, err := NewReconcileService(readings, bills, opts, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestReconcileCorrectsMisallocatedBill(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	seedReadings(readings, "A101", 100, 110, 110, 135)
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := summary.Reports[0].Outcome; got != UnitCorrected {
		t.Fatalf("outcome = %s, want corrected", got)
	}

	saved, err := bills.FindByUnitAndCycle(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reload bill: %v", err)
	}
	drift, chargeDrift := saved.AllocationDrift()
	if drift != 0 || !chargeDrift.IsZero() {
		t.Fatalf("persisted drift = %d/%s, want exact sums", drift, chargeDrift)
	}
	want := []int64{10, 0, 25}
	for i, entry := range saved.Breakdown() {
		if entry.Consumption != want[i] {
			t.Fatalf("entry %d consumption = %d, want %d", i, entry.Consumption, want[i])
		}
	}
}

func TestReconcileIdempotent(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	seedReadings(readings, "A101", 100, 110, 110, 135)
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})

	service := newService(t, readings, bills, testOptions())
	first, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Reports[0].Outcome != UnitCorrected {
		t.Fatalf("first run outcome = %s, want corrected", first.Reports[0].Outcome)
	}

	second, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Reports[0].Outcome != UnitVerified {
		t.Fatalf("second run outcome = %s, want verified no-op", second.Reports[0].Outcome)
	}
}

func TestReconcileNeverMutatesSettledBill(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	seedReadings(readings, "A101", 100, 110, 110, 135)
	// Billed at 100.00 against a readings-implied 87.50, and fully paid.
	seedBill(t, bills, "A101", 35, "100.00", []int64{15, 10, 10}, []string{"37.50", "25.00", "37.50"})

	bill, _ := bills.FindByUnitAndCycle(context.Background(), "A101", quarter())
	bill.AddPayment(billing.Payment{Amount: d("100.00"), Date: time.Now()})
	if err := bills.Save(context.Background(), bill); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	savesBefore := bills.SaveCount()

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	report := summary.Reports[0]
	if report.Outcome != UnitPaidDiscrepancy {
		t.Fatalf("outcome = %s, want paid_discrepancy", report.Outcome)
	}
	if !report.Delta.Equal(d("12.50")) {
		t.Fatalf("delta = %s, want 12.50 credit due", report.Delta)
	}
	if bills.SaveCount() != savesBefore {
		t.Fatal("settled bill was written")
	}

	reloaded, _ := bills.FindByUnitAndCycle(context.Background(), "A101", quarter())
	if reloaded.Breakdown()[0].Consumption != 15 {
		t.Fatal("settled bill's breakdown changed")
	}
}

func TestReconcileExclusionPreventsDoubleCredit(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	seedReadings(readings, "A101", 100, 110, 110, 135)
	seedBill(t, bills, "A101", 35, "100.00", []int64{15, 10, 10}, []string{"37.50", "25.00", "37.50"})

	bill, _ := bills.FindByUnitAndCycle(context.Background(), "A101", quarter())
	bill.AddPayment(billing.Payment{Amount: d("100.00"), Date: time.Now()})
	if err := bills.Save(context.Background(), bill); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	opts := testOptions()
	opts.Exclusions = []Exclusion{{
		Unit:   "A101",
		Cycle:  quarter(),
		Amount: d("12.50"),
		Reason: "flat-rate overcharge already credited",
	}}
	service := newService(t, readings, bills, opts)

	summary, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !summary.Reports[0].Delta.IsZero() {
		t.Fatalf("delta = %s, want 0 after exclusion", summary.Reports[0].Delta)
	}
}

func TestReconcileSettledBillWithMissingReadingIsSkipped(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	cycle := quarter()
	readings.Put(billing.MeterReading{UnitID: "A101", Period: cycle.PriorPeriod(), Value: 100})
	readings.Put(billing.MeterReading{UnitID: "A101", Period: cycle.SubPeriods()[0], Value: 110})
	// Second month's reading never arrived; the readings total covers only
	// 10 of the 35 billed units.
	readings.Put(billing.MeterReading{UnitID: "A101", Period: cycle.SubPeriods()[2], Value: 135})
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})

	bill, _ := bills.FindByUnitAndCycle(context.Background(), "A101", cycle)
	bill.AddPayment(billing.Payment{Amount: d("87.50"), Date: time.Now()})
	if err := bills.Save(context.Background(), bill); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	savesBefore := bills.SaveCount()

	// Fallback allocation would happily redistribute, but a settled bill's
	// delta priced against an incomplete readings total is fiction.
	opts := testOptions()
	opts.FallbackAllocation = true
	service := newService(t, readings, bills, opts)

	summary, err := service.ReconcileUnit(context.Background(), "A101", cycle)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	report := summary.Reports[0]
	if report.Outcome != UnitSkipped {
		t.Fatalf("outcome = %s, want skipped", report.Outcome)
	}
	if !report.Delta.IsZero() {
		t.Fatalf("delta = %s, want none for incomplete readings", report.Delta)
	}
	if report.Reason == "" {
		t.Fatal("skip carries no reason")
	}
	if bills.SaveCount() != savesBefore {
		t.Fatal("settled bill was written")
	}
}

func TestReconcileSettledBillBeyondToleranceIsPaidDiscrepancy(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	// Readings imply 41 units against a billed 35: six over tolerance, but
	// the bill is fully paid, so it belongs in the review packet.
	seedReadings(readings, "A101", 100, 110, 116, 141)
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})

	bill, _ := bills.FindByUnitAndCycle(context.Background(), "A101", quarter())
	bill.AddPayment(billing.Payment{Amount: d("87.50"), Date: time.Now()})
	if err := bills.Save(context.Background(), bill); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	savesBefore := bills.SaveCount()

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	report := summary.Reports[0]
	if report.Outcome != UnitPaidDiscrepancy {
		t.Fatalf("outcome = %s, want paid_discrepancy", report.Outcome)
	}
	// 87.50 billed vs 102.50 metered: the unit was undercharged by 15.00.
	if !report.Delta.Equal(d("-15.00")) {
		t.Fatalf("delta = %s, want -15.00", report.Delta)
	}
	if bills.SaveCount() != savesBefore {
		t.Fatal("settled bill was written")
	}
}

func TestReconcileDryRunComputesButNeverWrites(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	seedReadings(readings, "A101", 100, 110, 110, 135)
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})
	savesBefore := bills.SaveCount()

	dryOpts := testOptions()
	dryOpts.DryRun = true
	dry := newService(t, readings, bills, dryOpts)
	drySummary, err := dry.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if drySummary.Reports[0].Outcome != UnitCorrected {
		t.Fatalf("dry run outcome = %s, want corrected", drySummary.Reports[0].Outcome)
	}
	if bills.SaveCount() != savesBefore {
		t.Fatal("dry run persisted a correction")
	}

	// A live run must persist exactly what the dry run reported.
	live := newService(t, readings, bills, testOptions())
	if _, err := live.ReconcileUnit(context.Background(), "A101", quarter()); err != nil {
		t.Fatalf("live run: %v", err)
	}
	saved, _ := bills.FindByUnitAndCycle(context.Background(), "A101", quarter())
	for i, entry := range saved.Breakdown() {
		dryEntry := drySummary.Reports[0].After[i]
		if entry.Consumption != dryEntry.Consumption || !entry.Charge.Equal(dryEntry.Charge) {
			t.Fatalf("live entry %d %d/%s differs from dry-run %d/%s",
				i, entry.Consumption, entry.Charge, dryEntry.Consumption, dryEntry.Charge)
		}
	}
}

func TestReconcileSkipsOnMissingReading(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	cycle := quarter()
	readings.Put(billing.MeterReading{UnitID: "A101", Period: cycle.PriorPeriod(), Value: 100})
	readings.Put(billing.MeterReading{UnitID: "A101", Period: cycle.SubPeriods()[0], Value: 110})
	// Second month's reading never arrived.
	readings.Put(billing.MeterReading{UnitID: "A101", Period: cycle.SubPeriods()[2], Value: 135})
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})
	savesBefore := bills.SaveCount()

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileUnit(context.Background(), "A101", cycle)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	report := summary.Reports[0]
	if report.Outcome != UnitSkipped {
		t.Fatalf("outcome = %s, want skipped", report.Outcome)
	}
	if report.Reason == "" {
		t.Fatal("skip carries no reason")
	}
	if bills.SaveCount() != savesBefore {
		t.Fatal("skipped unit was written")
	}
}

func TestReconcileSkipsOnMeterReset(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	// Meter rolls back mid-quarter.
	seedReadings(readings, "A101", 100, 110, 40, 65)
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Reports[0].Outcome != UnitSkipped {
		t.Fatalf("outcome = %s, want skipped on negative consumption", summary.Reports[0].Outcome)
	}
}

func TestReconcilePerUnitIsolation(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	for _, unitID := range []string{"A101", "B202", "C303"} {
		seedReadings(readings, unitID, 100, 110, 110, 135)
		seedBill(t, bills, unitID, 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})
	}
	bills.FailSaveFor("B202", errors.New("connection reset"))

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileCycle(context.Background(), quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := summary.Count(UnitCorrected); got != 2 {
		t.Fatalf("corrected = %d, want 2", got)
	}
	if got := summary.Count(UnitFailed); got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	for _, report := range summary.Reports {
		if report.UnitID == "B202" {
			if report.Outcome != UnitFailed || report.Err == nil {
				t.Fatalf("B202 report = %+v, want failed with error", report)
			}
		}
	}
}

func TestReconcileUnfixableBeyondTolerance(t *testing.T) {
	readings := memory.NewReadingRepository()
	bills := memory.NewBillRepository()
	// Readings imply 41 units against a billed 35: six over tolerance.
	seedReadings(readings, "A101", 100, 110, 116, 141)
	seedBill(t, bills, "A101", 35, "87.50", []int64{15, 10, 10}, []string{"37.50", "25.00", "25.00"})
	savesBefore := bills.SaveCount()

	service := newService(t, readings, bills, testOptions())
	summary, err := service.ReconcileUnit(context.Background(), "A101", quarter())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Reports[0].Outcome != UnitUnfixable {
		t.Fatalf("outcome = %s, want unfixable", summary.Reports[0].Outcome)
	}
	if bills.SaveCount() != savesBefore {
		t.Fatal("unfixable unit was written")
	}
}

func TestReconcileUnknownUnit(t *testing.T) {
	service := newService(t, memory.NewReadingRepository(), memory.NewBillRepository(), testOptions())
	if _, err := service.ReconcileUnit(context.Background(), "NOPE", quarter()); !errors.Is(err, billing.ErrBillNotFound) {
		t.Fatalf("err = %v, want ErrBillNotFound", err)
	}
}
