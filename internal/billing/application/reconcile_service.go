package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billing "sams-billing/internal/billing/domain"
	"sams-billing/internal/observability/metrics"
)

// UnitOutcome is the terminal reconciliation state for one (unit, cycle).
type UnitOutcome string

const (
	// UnitVerified means readings match the existing breakdown.
	UnitVerified UnitOutcome = "verified"
	// UnitCorrected means a misallocation was fixed and persisted.
	UnitCorrected UnitOutcome = "corrected"
	// UnitUnfixable means the discrepancy exceeds tolerance; manual review.
	UnitUnfixable UnitOutcome = "unfixable"
	// UnitPaidDiscrepancy means the bill is settled; the delta is reported
	// but the bill is never mutated.
	UnitPaidDiscrepancy UnitOutcome = "paid_discrepancy"
	// UnitSkipped means required readings were missing or anomalous.
	UnitSkipped UnitOutcome = "skipped"
	// UnitFailed means loading or persisting the unit failed.
	UnitFailed UnitOutcome = "failed"
)

// Exclusion is a resolved already-credited billing error to subtract from
// a computed discrepancy.
type Exclusion struct {
	// Unit is the affected unit id; empty matches every unit.
	Unit   string
	Cycle  billing.BillingCycle
	Amount decimal.Decimal
	Reason string
}

// UnitReport is the per-unit reconciliation result.
type UnitReport struct {
	UnitID           string
	Cycle            billing.BillingCycle
	Outcome          UnitOutcome
	Strategy         string
	Before           []billing.BreakdownEntry
	After            []billing.BreakdownEntry
	TotalConsumption int64
	TotalCharge      decimal.Decimal
	ReadingsTotal    int64
	// Delta is the settled-bill monetary discrepancy after exclusions;
	// positive means the unit was overcharged (credit due).
	Delta  decimal.Decimal
	Paid   decimal.Decimal
	Reason string
	Err    error
}

// RunSummary aggregates one reconciliation run.
type RunSummary struct {
	RunID      uuid.UUID
	Cycle      billing.BillingCycle
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Reports    []UnitReport
}

// Count returns the number of reports with the given outcome.
func (s *RunSummary) Count(outcome UnitOutcome) int {
	n := 0
	for _, r := range s.Reports {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Options configures a ReconcileService.
type Options struct {
	Policy billing.AllocationPolicy
	// FallbackAllocation enables the charge-ratio and even-split
	// strategies when readings are incomplete. Off by default: units with
	// missing readings are skipped.
	FallbackAllocation bool
	Exclusions         []Exclusion
	// DryRun performs every computation and reports the would-be mutation
	// without calling Save.
	DryRun bool
}

// ReconcileService orchestrates allocation across units and cycles,
// classifies each bill's fixability, and decides whether to mutate or
// merely report. Each unit's read-compute-write cycle completes before the
// next unit starts; a failing unit never aborts the run.
type ReconcileService struct {
	readings   billing.ReadingRepository
	bills      billing.BillRepository
	opts       Options
	strategies []billing.AllocationStrategy
	logger     *log.Logger
	clock      Clock
}

// NewReconcileService constructs the service.
func NewReconcileService(readings billing.ReadingRepository, bills billing.BillRepository, opts Options, logger *log.Logger) (*ReconcileService, error) {
	if readings == nil {
		return nil, errors.New("reconcile service: nil reading repository")
	}
	if bills == nil {
		return nil, errors.New("reconcile service: nil bill repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReconcileService{
		readings:   readings,
		bills:      bills,
		opts:       opts,
		strategies: billing.DefaultStrategies(opts.FallbackAllocation),
		logger:     logger,
		clock:      SystemClock{},
	}, nil
}

// WithClock overrides the clock.
func (s *ReconcileService) WithClock(clock Clock) *ReconcileService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// ReconcileCycle reconciles every unit bill in the cycle.
func (s *ReconcileService) ReconcileCycle(ctx context.Context, cycle billing.BillingCycle) (*RunSummary, error) {
	if err := cycle.Validate(); err != nil {
		return nil, err
	}
	bills, err := s.bills.FindByCycle(ctx, cycle)
	if err != nil {
		return nil, fmt.Errorf("load bills for %s: %w", cycle.ID(), err)
	}
	return s.run(ctx, cycle, bills), nil
}

// ReconcileUnit reconciles a single unit's bill in the cycle.
func (s *ReconcileService) ReconcileUnit(ctx context.Context, unitID string, cycle billing.BillingCycle) (*RunSummary, error) {
	if unitID == "" {
		return nil, billing.ErrEmptyUnitID
	}
	if err := cycle.Validate(); err != nil {
		return nil, err
	}
	bill, err := s.bills.FindByUnitAndCycle(ctx, unitID, cycle)
	if err != nil {
		return nil, fmt.Errorf("load bill for %s %s: %w", unitID, cycle.ID(), err)
	}
	if bill == nil {
		return nil, billing.ErrBillNotFound
	}
	return s.run(ctx, cycle, []*billing.UnitBill{bill}), nil
}

func (s *ReconcileService) run(ctx context.Context, cycle billing.BillingCycle, bills []*billing.UnitBill) *RunSummary {
	summary := &RunSummary{
		RunID:     uuid.New(),
		Cycle:     cycle,
		DryRun:    s.opts.DryRun,
		StartedAt: s.clock.Now(),
	}
	mode := "live"
	if s.opts.DryRun {
		mode = "dry_run"
	}
	s.logger.Printf("reconcile_run_start run=%s cycle=%s mode=%s units=%d",
		summary.RunID, cycle.ID(), mode, len(bills))

	for _, bill := range bills {
		report := s.reconcileOne(ctx, bill)
		metrics.UnitOutcome(string(report.Outcome))
		summary.Reports = append(summary.Reports, report)
	}

	summary.FinishedAt = s.clock.Now()
	metrics.RunCompleted(mode, summary.FinishedAt.Sub(summary.StartedAt))
	s.logger.Printf("reconcile_run_done run=%s verified=%d corrected=%d unfixable=%d paid_discrepancy=%d skipped=%d failed=%d",
		summary.RunID,
		summary.Count(UnitVerified), summary.Count(UnitCorrected), summary.Count(UnitUnfixable),
		summary.Count(UnitPaidDiscrepancy), summary.Count(UnitSkipped), summary.Count(UnitFailed))
	return summary
}

func (s *ReconcileService) reconcileOne(ctx context.Context, bill *billing.UnitBill) UnitReport {
	report := UnitReport{
		UnitID:           bill.UnitID(),
		Cycle:            bill.Cycle(),
		Before:           bill.Breakdown(),
		TotalConsumption: bill.TotalConsumption(),
		TotalCharge:      bill.TotalCharge(),
		Paid:             bill.PaidAmount(),
	}

	consumption, readingsTotal, skipReason, err := s.deriveConsumption(ctx, bill)
	if err != nil {
		report.Outcome = UnitFailed
		report.Err = err
		s.logger.Printf("unit_failed unit=%s cycle=%s err=%v", report.UnitID, report.Cycle.ID(), err)
		return report
	}
	report.ReadingsTotal = readingsTotal
	// Fallback allocation may proceed without complete readings, but never
	// for a settled bill: its delta prices the readings total, and with a
	// period missing or anomalous that sum would overstate the credit due.
	if skipReason != "" && (!s.opts.FallbackAllocation || bill.IsSettled()) {
		report.Outcome = UnitSkipped
		report.Reason = skipReason
		s.logger.Printf("unit_skipped unit=%s cycle=%s reason=%s", report.UnitID, report.Cycle.ID(), skipReason)
		return report
	}

	result := billing.Allocate(billing.AllocationInput{
		Breakdown:        bill.Breakdown(),
		TotalConsumption: bill.TotalConsumption(),
		TotalCharge:      bill.TotalCharge(),
		Consumption:      consumption,
		Policy:           s.opts.Policy,
	}, s.strategies)
	report.Strategy = result.Strategy

	switch result.Outcome {
	case billing.OutcomeNoChange:
		report.Outcome = UnitVerified
		return report

	case billing.OutcomeUnfixable:
		// A fully paid bill is classified by settlement, not fixability:
		// it goes to the review packet with its delta instead of the
		// unfixable bucket.
		if bill.IsSettled() {
			report.Outcome = UnitPaidDiscrepancy
			report.Delta = s.settledDelta(bill, readingsTotal)
			report.Reason = result.Reason
			s.logger.Printf("unit_paid_discrepancy unit=%s cycle=%s delta=%s", report.UnitID, report.Cycle.ID(), report.Delta)
			return report
		}
		report.Outcome = UnitUnfixable
		report.Reason = result.Reason
		s.logger.Printf("unit_unfixable unit=%s cycle=%s reason=%s", report.UnitID, report.Cycle.ID(), result.Reason)
		return report
	}

	report.After = result.Breakdown
	// The per-unit summary prints before any mutation is attempted, so a
	// dry run and a live run show identical corrections.
	s.logger.Printf("unit_correction unit=%s cycle=%s strategy=%s before=[%s] after=[%s]",
		report.UnitID, report.Cycle.ID(), result.Strategy,
		formatEntries(report.Before), formatEntries(report.After))

	if bill.IsSettled() {
		report.Outcome = UnitPaidDiscrepancy
		report.Delta = s.settledDelta(bill, readingsTotal)
		report.Reason = "bill fully paid; reported only, never mutated"
		s.logger.Printf("unit_paid_discrepancy unit=%s cycle=%s delta=%s", report.UnitID, report.Cycle.ID(), report.Delta)
		return report
	}

	if s.opts.DryRun {
		report.Outcome = UnitCorrected
		report.Reason = "dry-run: correction not persisted"
		return report
	}

	if err := bill.ApplyCorrection(result.Breakdown); err != nil {
		report.Outcome = UnitFailed
		report.Err = err
		s.logger.Printf("unit_failed unit=%s cycle=%s err=%v", report.UnitID, report.Cycle.ID(), err)
		return report
	}
	if err := s.bills.Save(ctx, bill); err != nil {
		report.Outcome = UnitFailed
		report.Err = fmt.Errorf("persist correction: %w", err)
		s.logger.Printf("unit_failed unit=%s cycle=%s err=%v", report.UnitID, report.Cycle.ID(), report.Err)
		return report
	}
	report.Outcome = UnitCorrected
	return report
}

// deriveConsumption computes readings-derived consumption for every
// sub-period of the bill's cycle, including the first sub-period, which
// needs the last reading of the previous cycle.
func (s *ReconcileService) deriveConsumption(ctx context.Context, bill *billing.UnitBill) (map[billing.PeriodKey]billing.ConsumptionResult, int64, string, error) {
	cycle := bill.Cycle()
	periods := cycle.SubPeriods()
	wanted := append([]billing.PeriodKey{cycle.PriorPeriod()}, periods...)

	readings, err := s.readings.ListReadings(ctx, bill.UnitID(), wanted)
	if err != nil {
		return nil, 0, "", fmt.Errorf("load readings for %s: %w", bill.UnitID(), err)
	}

	consumption := make(map[billing.PeriodKey]billing.ConsumptionResult, len(periods))
	var total int64
	var skipReason string
	for _, period := range periods {
		result := billing.Consumption(readings[period], readings[period.Prior()])
		consumption[period] = result
		switch {
		case result.Missing && skipReason == "":
			skipReason = fmt.Sprintf("missing reading for %s", period)
		case result.Anomaly && skipReason == "":
			skipReason = fmt.Sprintf("negative consumption %d for %s (meter reset?)", result.Value, period)
		}
		if !result.Missing && !result.Anomaly {
			total += result.Value
		}
	}
	return consumption, total, skipReason, nil
}

// settledDelta is the monetary gap between what was billed and what the
// readings imply, minus configured already-credited exclusions.
func (s *ReconcileService) settledDelta(bill *billing.UnitBill, readingsTotal int64) decimal.Decimal {
	should := s.opts.Policy.UnitRate.Mul(decimal.NewFromInt(readingsTotal)).Round(2)
	delta := bill.TotalCharge().Sub(should)
	for _, excl := range s.opts.Exclusions {
		if excl.Cycle != bill.Cycle() {
			continue
		}
		if excl.Unit != "" && excl.Unit != bill.UnitID() {
			continue
		}
		delta = delta.Sub(excl.Amount)
	}
	if delta.Abs().LessThanOrEqual(s.opts.Policy.ChargeTolerance) {
		return decimal.Zero
	}
	return delta
}

func formatEntries(entries []billing.BreakdownEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s:%d@%s", e.Period, e.Consumption, e.Charge))
	}
	return strings.Join(parts, " ")
}
