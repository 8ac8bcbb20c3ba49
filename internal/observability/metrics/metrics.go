package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "sams_billing_"

var (
	registerOnce sync.Once

	reconcileUnitsTotal *prometheus.CounterVec
	reconcileRunsTotal  *prometheus.CounterVec
	reconcileRunSeconds prometheus.Histogram

	creditEventsDerivedTotal *prometheus.CounterVec
	comparatorRowsTotal      *prometheus.CounterVec
)

// Init registers the engine metrics. Safe to call more than once.
func Init(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		reconcileUnitsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_units_total",
				Help: "Reconciled units by outcome",
			},
			[]string{"outcome"},
		)
		reconcileRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_runs_total",
				Help: "Reconciliation runs by mode",
			},
			[]string{"mode"},
		)
		reconcileRunSeconds = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reconcile_run_seconds",
				Help:    "Reconciliation run duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		)
		creditEventsDerivedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "credit_events_derived_total",
				Help: "Derived credit events by type",
			},
			[]string{"type"},
		)
		comparatorRowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "credit_comparator_rows_total",
				Help: "Comparator discrepancy rows by kind",
			},
			[]string{"kind"},
		)

		registerer.MustRegister(
			reconcileUnitsTotal,
			reconcileRunsTotal,
			reconcileRunSeconds,
			creditEventsDerivedTotal,
			comparatorRowsTotal,
		)
	})
}

// UnitOutcome counts one reconciled unit by outcome label.
func UnitOutcome(outcome string) {
	if reconcileUnitsTotal != nil {
		reconcileUnitsTotal.WithLabelValues(outcome).Inc()
	}
}

// RunCompleted counts a finished run and observes its duration.
func RunCompleted(mode string, elapsed time.Duration) {
	if reconcileRunsTotal != nil {
		reconcileRunsTotal.WithLabelValues(mode).Inc()
	}
	if reconcileRunSeconds != nil {
		reconcileRunSeconds.Observe(elapsed.Seconds())
	}
}

// CreditEventDerived counts one derived credit event by type.
func CreditEventDerived(eventType string) {
	if creditEventsDerivedTotal != nil {
		creditEventsDerivedTotal.WithLabelValues(eventType).Inc()
	}
}

// ComparatorDiscrepancies counts comparator missing/extra rows.
func ComparatorDiscrepancies(missing, extra int) {
	if comparatorRowsTotal == nil {
		return
	}
	comparatorRowsTotal.WithLabelValues("missing_from_persisted").Add(float64(missing))
	comparatorRowsTotal.WithLabelValues("extra_in_persisted").Add(float64(extra))
}
