package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sams-billing/internal/billing/application"
	billing "sams-billing/internal/billing/domain"
	billingpg "sams-billing/internal/billing/infrastructure/postgres"
	"sams-billing/internal/billing/interfaces"
	"sams-billing/internal/observability/metrics"
)

type cliConfig struct {
	configPath string
	env        string
	cycle      string
	unitID     string
	all        bool
	dryRun     bool
	outDir     string
}

func main() {
	cli, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	cfg, err := application.LoadConfig(cli.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	policy, err := cfg.AllocationPolicy()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	exclusions, err := cfg.ResolveExclusions()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cycle, err := billing.ParseBillingCycle(cli.cycle)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cycle must be YYYY-Qn:", err)
		os.Exit(2)
	}
	dsn, err := cfg.DSN(cli.env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := os.MkdirAll(cli.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "db ping:", err)
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)
	metrics.Init(nil)

	service, err := application.NewReconcileService(
		billingpg.NewReadingRepository(db),
		billingpg.NewBillRepository(db),
		application.Options{
			Policy:             policy,
			FallbackAllocation: cfg.Billing.FallbackAllocation,
			Exclusions:         exclusions,
			DryRun:             cli.dryRun,
		},
		logger,
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var summary *application.RunSummary
	if cli.all {
		summary, err = service.ReconcileCycle(ctx, cycle)
	} else {
		summary, err = service.ReconcileUnit(ctx, cli.unitID, cycle)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(2)
	}

	if err := interfaces.WriteRunSummaryCSV(cli.outDir, summary); err != nil {
		fmt.Fprintln(os.Stderr, "write run summary:", err)
		os.Exit(2)
	}
	xlsx, err := interfaces.BuildDiscrepancyXLSX(summary)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build xlsx:", err)
		os.Exit(2)
	}
	if err := os.WriteFile(filepath.Join(cli.outDir, "run_summary.xlsx"), xlsx, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write xlsx:", err)
		os.Exit(2)
	}
	if summary.Count(application.UnitPaidDiscrepancy) > 0 {
		pdf, err := interfaces.BuildReviewPacketPDF(summary, cfg.Billing.Currency)
		if err != nil {
			fmt.Fprintln(os.Stderr, "build review packet:", err)
			os.Exit(2)
		}
		if err := os.WriteFile(filepath.Join(cli.outDir, "paid_discrepancies.pdf"), pdf, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write review packet:", err)
			os.Exit(2)
		}
	}

	// Per-unit failures are reported above but do not fail the run.
	fmt.Printf("Reconciliation outputs written to %s (verified=%d corrected=%d unfixable=%d paid_discrepancy=%d skipped=%d failed=%d)\n",
		cli.outDir,
		summary.Count(application.UnitVerified),
		summary.Count(application.UnitCorrected),
		summary.Count(application.UnitUnfixable),
		summary.Count(application.UnitPaidDiscrepancy),
		summary.Count(application.UnitSkipped),
		summary.Count(application.UnitFailed))
}

func parseFlags() (cliConfig, error) {
	var cli cliConfig
	flag.StringVar(&cli.configPath, "config", os.Getenv("SAMS_BILLING_CONFIG"), "config yaml path")
	flag.StringVar(&cli.env, "env", "dev", "environment (dev|prod)")
	flag.StringVar(&cli.cycle, "cycle", "", "billing cycle in YYYY-Qn")
	flag.StringVar(&cli.unitID, "unit", "", "single unit id")
	flag.BoolVar(&cli.all, "all", false, "reconcile every unit in the cycle")
	flag.BoolVar(&cli.dryRun, "dry-run", false, "compute and report without persisting")
	flag.StringVar(&cli.outDir, "out", "./out", "output directory")
	flag.Parse()

	if cli.cycle == "" {
		return cli, errors.New("missing --cycle (YYYY-Qn)")
	}
	if !cli.all && cli.unitID == "" {
		return cli, errors.New("missing --unit (or pass --all)")
	}
	if cli.all && cli.unitID != "" {
		return cli, errors.New("--unit and --all are mutually exclusive")
	}
	return cli, nil
}
