package creditflow

import "errors"

var (
	// ErrEmptyUnitID is returned when a unit id is empty.
	ErrEmptyUnitID = errors.New("creditflow: empty unit id")
	// ErrUnitNotFound is returned when a unit has no ledger.
	ErrUnitNotFound = errors.New("creditflow: unit not found")
	// ErrUnorderedLedger is returned when line items are not chronological.
	ErrUnorderedLedger = errors.New("creditflow: line items out of chronological order")
)
