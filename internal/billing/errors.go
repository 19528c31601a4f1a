package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crossbridge/crossbridge/internal/shared"
)

var (
	// ErrCounterpartyNotFound indicates an unknown counterparty id.
	ErrCounterpartyNotFound = fmt.Errorf("billing: counterparty %w", shared.ErrNotFound)
	// ErrBillNotFound indicates an unknown bill id.
	ErrBillNotFound = fmt.Errorf("billing: bill %w", shared.ErrNotFound)
	// ErrNoBillableActivity is a normal outcome: nothing in the period to bill.
	ErrNoBillableActivity = errors.New("billing: no billable activity")
	// ErrNothingOwed means records exist but the net amount is not positive.
	ErrNothingOwed = errors.New("billing: nothing owed")
	// ErrBillConflict means an active bill already holds the key.
	ErrBillConflict = errors.New("billing: active bill already exists")
	// ErrBillLocked refuses to overwrite a bill the approval workflow has
	// already accepted.
	ErrBillLocked = errors.New("billing: bill is approved or paid and cannot be overwritten")
	// ErrInvalidStatusTransition indicates a lifecycle move that is not allowed.
	ErrInvalidStatusTransition = errors.New("billing: status transition invalid")
	// ErrDuplicateRecord flags the same record id appearing twice in one input.
	ErrDuplicateRecord = errors.New("billing: record supplied twice")
	// ErrUnsupportedCounterparty indicates a counterparty kind with no bill kind.
	ErrUnsupportedCounterparty = errors.New("billing: counterparty kind not billable")
)

// MixedCurrencyError reports incompatible currencies inside one aggregation.
type MixedCurrencyError struct {
	CounterpartyID string
	Period         string
	// SubEntityID is set when the disagreement is inside a single bucket.
	SubEntityID string
	Currencies  []string
}

func (e *MixedCurrencyError) Error() string {
	scope := "counterparty " + e.CounterpartyID
	if e.SubEntityID != "" {
		scope += " sub-entity " + e.SubEntityID
	}
	return fmt.Sprintf("billing: mixed currency for %s period %s: %s", scope, e.Period, strings.Join(e.Currencies, ","))
}
