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

	billingapp "sams-billing/internal/billing/application"
	"sams-billing/internal/creditflow/application"
	creditflow "sams-billing/internal/creditflow/domain"
	creditpg "sams-billing/internal/creditflow/infrastructure/postgres"
	"sams-billing/internal/creditflow/interfaces"
	"sams-billing/internal/observability/metrics"
)

type cliConfig struct {
	configPath string
	env        string
	unitID     string
	all        bool
	outDir     string
}

func main() {
	cli, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	cfg, err := billingapp.LoadConfig(cli.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	threshold, err := cfg.CreditThreshold()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	amountTol, window, err := cfg.CreditMatch()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
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

	service, err := application.NewAuditService(
		creditpg.NewHistoryRepository(db),
		creditflow.NewDeriver(threshold),
		application.NewComparator(amountTol, window),
		logger,
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var results []application.AuditResult
	if cli.all {
		results, err = service.AuditAll(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "audit:", err)
			os.Exit(2)
		}
	} else {
		audit, err := service.AuditUnit(ctx, cli.unitID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "audit:", err)
			os.Exit(2)
		}
		results = []application.AuditResult{{UnitID: cli.unitID, Audit: audit}}
	}

	if err := interfaces.WriteAuditCSV(cli.outDir, results); err != nil {
		fmt.Fprintln(os.Stderr, "write audit csv:", err)
		os.Exit(2)
	}
	xlsx, err := interfaces.BuildAuditXLSX(results)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build audit xlsx:", err)
		os.Exit(2)
	}
	if err := os.WriteFile(filepath.Join(cli.outDir, "credit_audit.xlsx"), xlsx, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write audit xlsx:", err)
		os.Exit(2)
	}

	failed := 0
	missing := 0
	extra := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			continue
		}
		missing += len(result.Audit.Report.MissingFromPersisted)
		extra += len(result.Audit.Report.ExtraInPersisted)
	}
	fmt.Printf("Credit audit outputs written to %s (units=%d missing=%d extra=%d failed=%d)\n",
		cli.outDir, len(results), missing, extra, failed)
}

func parseFlags() (cliConfig, error) {
	var cli cliConfig
	flag.StringVar(&cli.configPath, "config", os.Getenv("SAMS_BILLING_CONFIG"), "config yaml path")
	flag.StringVar(&cli.env, "env", "dev", "environment (dev|prod)")
	flag.StringVar(&cli.unitID, "unit", "", "single unit id")
	flag.BoolVar(&cli.all, "all", false, "audit every unit with a ledger")
	flag.StringVar(&cli.outDir, "out", "./out", "output directory")
	flag.Parse()

	if !cli.all && cli.unitID == "" {
		return cli, errors.New("missing --unit (or pass --all)")
	}
	if cli.all && cli.unitID != "" {
		return cli, errors.New("--unit and --all are mutually exclusive")
	}
	return cli, nil
}
