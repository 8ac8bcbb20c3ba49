package application

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	billing "sams-billing/internal/billing/domain"
)

// Environment selects a database target (dev/prod).
type Environment struct {
	DSN string `yaml:"dsn"`
}

// BillingSettings configures the allocator and engine tolerances. Monetary
// values are decimal strings.
type BillingSettings struct {
	UnitRate           string `yaml:"unit_rate"`
	Currency           string `yaml:"currency"`
	ToleranceUnits     int64  `yaml:"tolerance_units"`
	ChargeTolerance    string `yaml:"charge_tolerance"`
	FallbackAllocation bool   `yaml:"fallback_allocation"`
}

// ExclusionRule excludes an already-credited billing error from computed
// discrepancies, so a reimbursed overcharge is not credited twice.
type ExclusionRule struct {
	// Unit is the affected unit id; empty applies to every unit.
	Unit   string `yaml:"unit"`
	Cycle  string `yaml:"cycle"`
	Amount string `yaml:"amount"`
	Reason string `yaml:"reason"`
}

// CreditSettings configures the credit deriver and comparator.
type CreditSettings struct {
	NegligibleThreshold string `yaml:"negligible_threshold"`
	AmountTolerance     string `yaml:"amount_tolerance"`
	DateWindowDays      int    `yaml:"date_window_days"`
}

// Config is the engine configuration file.
type Config struct {
	Environments map[string]Environment `yaml:"environments"`
	Billing      BillingSettings        `yaml:"billing"`
	Exclusions   []ExclusionRule        `yaml:"exclusions"`
	Credit       CreditSettings         `yaml:"credit"`
}

// LoadConfig loads configuration from the given yaml path, falling back to
// the SAMS_BILLING_CONFIG env var and then to defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Billing: BillingSettings{
			UnitRate:        getenvDefault("SAMS_UNIT_RATE", "27.50"),
			Currency:        getenvDefault("SAMS_CURRENCY", "MXN"),
			ToleranceUnits:  5,
			ChargeTolerance: "1.00",
		},
		Credit: CreditSettings{
			NegligibleThreshold: "0.01",
			AmountTolerance:     "0.01",
			DateWindowDays:      7,
		},
	}

	if path == "" {
		path = os.Getenv("SAMS_BILLING_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Billing.ToleranceUnits < 0 {
		return cfg, errors.New("config: tolerance_units must not be negative")
	}
	if cfg.Credit.DateWindowDays <= 0 {
		cfg.Credit.DateWindowDays = 7
	}
	return cfg, nil
}

// DSN resolves the connection string for the named environment, with
// DATABASE_URL as the last resort.
func (c Config) DSN(env string) (string, error) {
	if e, ok := c.Environments[env]; ok && e.DSN != "" {
		return e.DSN, nil
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}
	return "", fmt.Errorf("config: no DSN for environment %q", env)
}

// AllocationPolicy resolves the billing settings into a domain policy.
func (c Config) AllocationPolicy() (billing.AllocationPolicy, error) {
	rate, err := decimal.NewFromString(c.Billing.UnitRate)
	if err != nil {
		return billing.AllocationPolicy{}, fmt.Errorf("config: unit_rate: %w", err)
	}
	if rate.IsNegative() {
		return billing.AllocationPolicy{}, billing.ErrNegativeRate
	}
	chargeTol, err := decimal.NewFromString(c.Billing.ChargeTolerance)
	if err != nil {
		return billing.AllocationPolicy{}, fmt.Errorf("config: charge_tolerance: %w", err)
	}
	return billing.AllocationPolicy{
		UnitRate:        rate,
		ToleranceUnits:  c.Billing.ToleranceUnits,
		ChargeTolerance: chargeTol,
	}, nil
}

// ResolveExclusions parses the configured exclusion rules.
func (c Config) ResolveExclusions() ([]Exclusion, error) {
	out := make([]Exclusion, 0, len(c.Exclusions))
	for _, rule := range c.Exclusions {
		cycle, err := billing.ParseBillingCycle(rule.Cycle)
		if err != nil {
			return nil, fmt.Errorf("config: exclusion cycle %q: %w", rule.Cycle, err)
		}
		amount, err := decimal.NewFromString(rule.Amount)
		if err != nil {
			return nil, fmt.Errorf("config: exclusion amount %q: %w", rule.Amount, err)
		}
		out = append(out, Exclusion{
			Unit:   rule.Unit,
			Cycle:  cycle,
			Amount: amount,
			Reason: rule.Reason,
		})
	}
	return out, nil
}

// CreditThreshold resolves the deriver's negligible-event threshold.
func (c Config) CreditThreshold() (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(c.Credit.NegligibleThreshold)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: negligible_threshold: %w", err)
	}
	return threshold, nil
}

// CreditMatch resolves the comparator's amount tolerance and date window.
func (c Config) CreditMatch() (decimal.Decimal, time.Duration, error) {
	tolerance, err := decimal.NewFromString(c.Credit.AmountTolerance)
	if err != nil {
		return decimal.Decimal{}, 0, fmt.Errorf("config: amount_tolerance: %w", err)
	}
	return tolerance, time.Duration(c.Credit.DateWindowDays) * 24 * time.Hour, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
