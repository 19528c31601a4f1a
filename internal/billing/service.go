package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crossbridge/crossbridge/internal/duedate"
	"github.com/crossbridge/crossbridge/internal/shared"
)

// Service runs single-counterparty aggregation and bill generation. It holds
// no state between calls; serialisation per key is the caller's concern.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService constructs a billing service instance.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Counterparties lists every counterparty known to the store.
func (s *Service) Counterparties(ctx context.Context) ([]Counterparty, error) {
	return s.store.ListCounterparties(ctx)
}

// Counterparty resolves one counterparty.
func (s *Service) Counterparty(ctx context.Context, id string) (Counterparty, error) {
	return s.store.GetCounterparty(ctx, id)
}

// Aggregate previews the bill totals for one counterparty without persisting.
func (s *Service) Aggregate(ctx context.Context, counterpartyID, period string) (Aggregation, error) {
	if _, err := shared.ParsePeriod(period); err != nil {
		return Aggregation{}, err
	}
	if _, err := s.store.GetCounterparty(ctx, counterpartyID); err != nil {
		return Aggregation{}, err
	}
	records, err := s.store.ListBillableRecords(ctx, counterpartyID, period)
	if err != nil {
		return Aggregation{}, fmt.Errorf("list records: %w", err)
	}
	return Aggregate(counterpartyID, period, records)
}

// GenerateInput drives Generate.
type GenerateInput struct {
	CounterpartyID string
	Period         string
	// Overwrite is the caller's explicit authorisation to replace an active bill.
	Overwrite bool
	Notes     string
}

// Generate aggregates and persists the bill for one counterparty and period.
// The returned error is one of ErrNoBillableActivity, ErrBillConflict,
// ErrNothingOwed for the non-failure outcomes; anything else is a failure.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (Bill, error) {
	if _, err := shared.ParsePeriod(in.Period); err != nil {
		return Bill{}, err
	}
	cp, err := s.store.GetCounterparty(ctx, in.CounterpartyID)
	if err != nil {
		return Bill{}, err
	}
	return s.GenerateFor(ctx, cp, in)
}

// GenerateFor is Generate for an already resolved counterparty.
func (s *Service) GenerateFor(ctx context.Context, cp Counterparty, in GenerateInput) (Bill, error) {
	kind, ok := KindFor(cp.Kind)
	if !ok {
		return Bill{}, fmt.Errorf("%w: %s", ErrUnsupportedCounterparty, cp.Kind)
	}
	records, err := s.store.ListBillableRecords(ctx, cp.ID, in.Period)
	if err != nil {
		return Bill{}, fmt.Errorf("list records: %w", err)
	}
	agg, aggErr := Aggregate(cp.ID, in.Period, records)
	if errors.Is(aggErr, ErrNoBillableActivity) {
		return Bill{}, aggErr
	}

	key := Key{CounterpartyID: cp.ID, Period: in.Period, Kind: kind}
	existing, found, err := s.store.FindActive(ctx, key)
	if err != nil {
		return Bill{}, fmt.Errorf("find active bill: %w", err)
	}
	if found && !in.Overwrite {
		return existing, ErrBillConflict
	}
	if aggErr != nil {
		return Bill{}, aggErr
	}
	if !agg.TotalNet.IsPositive() {
		return Bill{}, ErrNothingOwed
	}

	bill := s.buildBill(cp, kind, agg, in.Notes)
	if found {
		if err := CanOverwrite(existing); err != nil {
			return existing, err
		}
		return s.store.Overwrite(ctx, existing.ID, bill)
	}
	return s.store.Create(ctx, bill)
}

func (s *Service) buildBill(cp Counterparty, kind BillKind, agg Aggregation, notes string) Bill {
	now := s.now().UTC()
	bill := Bill{
		ID:               s.newID(),
		Period:           agg.Period,
		Kind:             kind,
		CounterpartyID:   cp.ID,
		CounterpartyName: cp.Name,
		Currency:         agg.Currency,
		Gross:            agg.TotalGross,
		Rebate:           agg.TotalRebate,
		Net:              agg.TotalNet,
		Paid:             agg.TotalPaid,
		RecordIDs:        agg.RecordIDs(),
		Lines:            agg.Lines(),
		Status:           StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var notesOut []string
	if strings.TrimSpace(notes) != "" {
		notesOut = append(notesOut, strings.TrimSpace(notes))
	}
	if cp.CreditTerm != "" {
		if due, ok := duedate.PaymentDueDate(cp.CreditTerm, agg.Period); ok {
			bill.PaymentDueDate = &due
		} else {
			notesOut = append(notesOut, fmt.Sprintf("payment due date unknown: credit term %q not recognised", cp.CreditTerm))
		}
	}
	if cp.RebatePeriod != "" && !agg.TotalRebate.IsZero() {
		if due, ok := duedate.RebateDueDate(agg.Period, cp.RebatePeriod); ok {
			bill.RebateDueDate = &due
		} else {
			notesOut = append(notesOut, fmt.Sprintf("rebate due date unknown: rebate period %q not recognised", cp.RebatePeriod))
		}
	}
	bill.Notes = strings.Join(notesOut, "; ")
	return bill
}

// Get returns one bill.
func (s *Service) Get(ctx context.Context, id string) (Bill, error) {
	return s.store.Get(ctx, id)
}

// List returns bills matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Bill, error) {
	return s.store.List(ctx, filter)
}

// FindActive exposes conflict detection for interactive callers.
func (s *Service) FindActive(ctx context.Context, key Key) (Bill, bool, error) {
	return s.store.FindActive(ctx, key)
}

// TransitionStatus moves a bill along its lifecycle.
func (s *Service) TransitionStatus(ctx context.Context, id string, target BillStatus) (Bill, error) {
	bill, err := s.store.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if err := ValidateStatusTransition(bill.Status, target); err != nil {
		return Bill{}, err
	}
	if bill.Status == target {
		return bill, nil
	}
	now := s.now().UTC()
	if err := s.store.UpdateStatus(ctx, id, target, now); err != nil {
		return Bill{}, err
	}
	bill.Status = target
	bill.UpdatedAt = now
	return bill, nil
}
