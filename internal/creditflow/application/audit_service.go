package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	creditflow "sams-billing/internal/creditflow/domain"
	"sams-billing/internal/observability/metrics"
)

// UnitAudit is the read-only credit analysis for one unit.
type UnitAudit struct {
	UnitID         string
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	Events         []creditflow.CreditEvent
	Report         ComparisonReport
}

// AuditResult is one unit's slot in a portfolio audit. Err is set when the
// unit's ledger could not be loaded; other units are unaffected.
type AuditResult struct {
	UnitID string
	Audit  *UnitAudit
	Err    error
}

// AuditService derives credit events from running balances and diffs them
// against the persisted credit history. Strictly read-only.
type AuditService struct {
	history    creditflow.HistoryRepository
	deriver    creditflow.Deriver
	comparator Comparator
	logger     *log.Logger
}

// NewAuditService constructs the service.
func NewAuditService(history creditflow.HistoryRepository, deriver creditflow.Deriver, comparator Comparator, logger *log.Logger) (*AuditService, error) {
	if history == nil {
		return nil, errors.New("credit audit service: nil history repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AuditService{
		history:    history,
		deriver:    deriver,
		comparator: comparator,
		logger:     logger,
	}, nil
}

// AuditUnit derives and compares credit events for a single unit.
func (s *AuditService) AuditUnit(ctx context.Context, unitID string) (*UnitAudit, error) {
	if unitID == "" {
		return nil, creditflow.ErrEmptyUnitID
	}

	opening, err := s.history.OpeningBalance(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("opening balance for %s: %w", unitID, err)
	}
	items, err := s.history.ListLineItems(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("line items for %s: %w", unitID, err)
	}
	persisted, err := s.history.ListPersistedEvents(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("persisted credit history for %s: %w", unitID, err)
	}

	events, err := s.deriver.Derive(unitID, opening, items)
	if err != nil {
		return nil, fmt.Errorf("derive credit events for %s: %w", unitID, err)
	}
	for _, event := range events {
		metrics.CreditEventDerived(string(event.Type))
	}

	closing := opening
	if len(items) > 0 {
		closing = items[len(items)-1].Balance
	}

	report := s.comparator.Compare(events, persisted)
	metrics.ComparatorDiscrepancies(len(report.MissingFromPersisted), len(report.ExtraInPersisted))
	if len(report.MissingFromPersisted) > 0 || len(report.ExtraInPersisted) > 0 {
		s.logger.Printf("credit_audit unit=%s matched=%d missing=%d extra=%d",
			unitID, len(report.Matched), len(report.MissingFromPersisted), len(report.ExtraInPersisted))
	}

	return &UnitAudit{
		UnitID:         unitID,
		OpeningBalance: opening,
		ClosingBalance: closing,
		Events:         events,
		Report:         report,
	}, nil
}

// AuditAll audits every unit with a ledger. A failing unit is recorded and
// the run continues with the next one.
func (s *AuditService) AuditAll(ctx context.Context) ([]AuditResult, error) {
	unitIDs, err := s.history.ListUnitIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	results := make([]AuditResult, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		audit, err := s.AuditUnit(ctx, unitID)
		if err != nil {
			s.logger.Printf("credit_audit_failed unit=%s err=%v", unitID, err)
			results = append(results, AuditResult{UnitID: unitID, Err: err})
			continue
		}
		results = append(results, AuditResult{UnitID: unitID, Audit: audit})
	}
	return results, nil
}
