package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	creditflow "sams-billing/internal/creditflow/domain"
)

const (
	defaultLedgerTable  = "unit_ledger_items"
	defaultHistoryTable = "credit_balance_history"
)

// HistoryRepository is a Postgres implementation of the ledger and
// persisted credit-history store. Strictly read-only.
type HistoryRepository struct {
	db           *sql.DB
	ledgerTable  string
	historyTable string
}

// NewHistoryRepository constructs a repository with defaults.
func NewHistoryRepository(db *sql.DB, opts ...HistoryOption) *HistoryRepository {
	repo := &HistoryRepository{
		db:           db,
		ledgerTable:  defaultLedgerTable,
		historyTable: defaultHistoryTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// HistoryOption configures the repository.
type HistoryOption func(*HistoryRepository)

// WithLedgerTable overrides the ledger table.
func WithLedgerTable(table string) HistoryOption {
	return func(repo *HistoryRepository) {
		if table != "" {
			repo.ledgerTable = table
		}
	}
}

// WithHistoryTable overrides the credit-history table.
func WithHistoryTable(table string) HistoryOption {
	return func(repo *HistoryRepository) {
		if table != "" {
			repo.historyTable = table
		}
	}
}

// OpeningBalance loads the unit's opening balance. The opening row is the
// ledger's initial condition, stored with a NULL entry date.
func (r *HistoryRepository) OpeningBalance(ctx context.Context, unitID string) (decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return decimal.Decimal{}, errors.New("history repo: nil db")
	}
	if unitID == "" {
		return decimal.Decimal{}, creditflow.ErrEmptyUnitID
	}

	query := fmt.Sprintf(`
SELECT balance
FROM %s
WHERE unit_id = $1 AND entry_date IS NULL`, r.ledgerTable)

	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, unitID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, creditflow.ErrUnitNotFound
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	return balance, nil
}

// ListLineItems loads the unit's ledger in chronological order.
func (r *HistoryRepository) ListLineItems(ctx context.Context, unitID string) ([]creditflow.LineItem, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	if unitID == "" {
		return nil, creditflow.ErrEmptyUnitID
	}

	query := fmt.Sprintf(`
SELECT entry_date, description, charge, payment, balance
FROM %s
WHERE unit_id = $1 AND entry_date IS NOT NULL
ORDER BY entry_date ASC, id ASC`, r.ledgerTable)

	rows, err := r.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []creditflow.LineItem
	for rows.Next() {
		var item creditflow.LineItem
		var date time.Time
		if err := rows.Scan(&date, &item.Description, &item.Charge, &item.Payment, &item.Balance); err != nil {
			return nil, err
		}
		item.Date = date.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListPersistedEvents loads the unit's stored credit history.
func (r *HistoryRepository) ListPersistedEvents(ctx context.Context, unitID string) ([]creditflow.PersistedEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	if unitID == "" {
		return nil, creditflow.ErrEmptyUnitID
	}

	query := fmt.Sprintf(`
SELECT id, unit_id, event_date, event_type, amount, notes
FROM %s
WHERE unit_id = $1
ORDER BY event_date ASC, id ASC`, r.historyTable)

	rows, err := r.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []creditflow.PersistedEntry
	for rows.Next() {
		var entry creditflow.PersistedEntry
		var date time.Time
		var eventType string
		var notes sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UnitID, &date, &eventType, &entry.Amount, &notes); err != nil {
			return nil, err
		}
		entry.Date = date.UTC()
		entry.Type = creditflow.EventType(eventType)
		if notes.Valid {
			entry.Notes = notes.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListUnitIDs returns every unit with ledger rows.
func (r *HistoryRepository) ListUnitIDs(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT unit_id
FROM %s
ORDER BY unit_id ASC`, r.ledgerTable)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
