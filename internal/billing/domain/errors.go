package billing

import "errors"

var (
	// ErrEmptyUnitID is returned when a unit id is empty.
	ErrEmptyUnitID = errors.New("billing: empty unit id")
	// ErrInvalidCycle is returned when a billing cycle is malformed.
	ErrInvalidCycle = errors.New("billing: invalid billing cycle")
	// ErrInvalidPeriod is returned when a period key is malformed.
	ErrInvalidPeriod = errors.New("billing: invalid period key")
	// ErrNilBill is returned when saving a nil bill.
	ErrNilBill = errors.New("billing: nil bill")
	// ErrBillNotFound is returned when a unit bill is not found.
	ErrBillNotFound = errors.New("billing: bill not found")
	// ErrBillSettled is returned when a mutation targets a fully paid bill.
	ErrBillSettled = errors.New("billing: bill already settled")
	// ErrAllocationMismatch is returned when a corrected breakdown does not
	// sum to the bill totals.
	ErrAllocationMismatch = errors.New("billing: corrected breakdown does not match bill totals")
	// ErrNegativeRate is returned when a unit rate is negative.
	ErrNegativeRate = errors.New("billing: negative unit rate")
)
