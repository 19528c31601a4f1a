package billing

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crossbridge/crossbridge/internal/duedate"
	"github.com/crossbridge/crossbridge/internal/shared"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store)
	svc.WithClock(func() time.Time { return time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC) })
	seq := 0
	svc.newID = func() string {
		seq++
		return "bill-" + strconv.Itoa(seq)
	}
	return svc, store
}

func seedAgency(store *MemoryStore) {
	store.PutCounterparty(Counterparty{
		ID:           "A",
		Name:         "Blue Media",
		Kind:         CounterpartyAgency,
		CreditTerm:   "day 15 of next month",
		RebatePeriod: duedate.RebateQuarterly,
	})
	store.AddRecords(
		RawRecord{ID: "r1", CounterpartyID: "A", SubEntityID: "ad-1", Period: "2024-01", Amount: dec("2000"), Currency: "USD", Rebate: rebateOf("2000", "3")},
		RawRecord{ID: "r2", CounterpartyID: "A", SubEntityID: "ad-1", Period: "2024-01", Amount: dec("1500"), Currency: "USD", Rebate: rebateOf("1500", "3")},
	)
}

func TestGenerateCreatesBillWithDueDates(t *testing.T) {
	svc, store := newTestService(t)
	seedAgency(store)
	ctx := context.Background()

	bill, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01"})
	require.NoError(t, err)
	require.Equal(t, "bill-1", bill.ID)
	require.Equal(t, KindPayableAgency, bill.Kind)
	require.Equal(t, StatusDraft, bill.Status)
	require.True(t, bill.Gross.Equal(dec("3500")))
	require.True(t, bill.Rebate.Equal(dec("105")))
	require.True(t, bill.Net.Equal(dec("3395")))
	require.ElementsMatch(t, []string{"r1", "r2"}, bill.RecordIDs)
	require.NotNil(t, bill.PaymentDueDate)
	require.Equal(t, "2024-02-15", bill.PaymentDueDate.Format("2006-01-02"))
	require.NotNil(t, bill.RebateDueDate)
	require.Equal(t, "2024-04-30", bill.RebateDueDate.Format("2006-01-02"))

	active, found, err := svc.FindActive(ctx, bill.Key())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, bill.ID, active.ID)
}

func TestGenerateConflictThenOverwrite(t *testing.T) {
	svc, store := newTestService(t)
	seedAgency(store)
	ctx := context.Background()

	first, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01"})
	require.NoError(t, err)

	existing, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01"})
	require.ErrorIs(t, err, ErrBillConflict)
	require.Equal(t, first.ID, existing.ID)

	second, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01", Overwrite: true})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = svc.Get(ctx, first.ID)
	require.ErrorIs(t, err, ErrBillNotFound)
	bills, err := svc.List(ctx, ListFilter{Period: "2024-01"})
	require.NoError(t, err)
	require.Len(t, bills, 1)
}

func TestGenerateRefusesOverwriteOfApprovedBill(t *testing.T) {
	svc, store := newTestService(t)
	seedAgency(store)
	ctx := context.Background()

	bill, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01"})
	require.NoError(t, err)
	for _, st := range []BillStatus{StatusPendingReview, StatusApproved} {
		_, err = svc.TransitionStatus(ctx, bill.ID, st)
		require.NoError(t, err)
	}
	_, err = svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01", Overwrite: true})
	require.ErrorIs(t, err, ErrBillLocked)
}

func TestGenerateOutcomes(t *testing.T) {
	svc, store := newTestService(t)
	store.PutCounterparty(Counterparty{ID: "S", Name: "Factory", Kind: CounterpartySupplier})
	store.PutCounterparty(Counterparty{ID: "Z", Name: "Refunds", Kind: CounterpartySupplier})
	store.PutCounterparty(Counterparty{ID: "X", Name: "Odd", Kind: CounterpartyKind("INFLUENCER")})
	store.AddRecords(RawRecord{ID: "z1", CounterpartyID: "Z", SubEntityID: "c", Period: "2024-01", Amount: dec("100"), Currency: "CNY", Rebate: decPtr("100")})
	ctx := context.Background()

	_, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "S", Period: "2024-01"})
	require.ErrorIs(t, err, ErrNoBillableActivity)

	_, err = svc.Generate(ctx, GenerateInput{CounterpartyID: "Z", Period: "2024-01"})
	require.ErrorIs(t, err, ErrNothingOwed)

	_, err = svc.Generate(ctx, GenerateInput{CounterpartyID: "missing", Period: "2024-01"})
	require.ErrorIs(t, err, ErrCounterpartyNotFound)

	_, err = svc.Generate(ctx, GenerateInput{CounterpartyID: "X", Period: "2024-01"})
	require.ErrorIs(t, err, ErrUnsupportedCounterparty)

	_, err = svc.Generate(ctx, GenerateInput{CounterpartyID: "S", Period: "January"})
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
}

func TestGenerateNotesUnknownDueDate(t *testing.T) {
	svc, store := newTestService(t)
	store.PutCounterparty(Counterparty{ID: "A", Name: "Agency", Kind: CounterpartyAgency, CreditTerm: "pay when convenient"})
	store.AddRecords(RawRecord{ID: "1", CounterpartyID: "A", SubEntityID: "ad", Period: "2024-05", Amount: dec("10"), Currency: "USD"})

	bill, err := svc.Generate(context.Background(), GenerateInput{CounterpartyID: "A", Period: "2024-05", Notes: "May spend"})
	require.NoError(t, err)
	require.Nil(t, bill.PaymentDueDate)
	require.Nil(t, bill.RebateDueDate)
	require.Contains(t, bill.Notes, "May spend")
	require.Contains(t, bill.Notes, "payment due date unknown")
}

func TestGenerateMixedCurrencyFailsEvenWithoutExistingBill(t *testing.T) {
	svc, store := newTestService(t)
	store.PutCounterparty(Counterparty{ID: "S", Name: "Factory", Kind: CounterpartySupplier})
	store.AddRecords(
		RawRecord{ID: "1", CounterpartyID: "S", SubEntityID: "c1", Period: "2024-01", Amount: dec("10"), Currency: "USD"},
		RawRecord{ID: "2", CounterpartyID: "S", SubEntityID: "c2", Period: "2024-01", Amount: dec("10"), Currency: "CNY"},
	)
	_, err := svc.Generate(context.Background(), GenerateInput{CounterpartyID: "S", Period: "2024-01"})
	var mixed *MixedCurrencyError
	require.True(t, errors.As(err, &mixed))
}

func TestAggregatePreviewDoesNotPersist(t *testing.T) {
	svc, store := newTestService(t)
	seedAgency(store)
	ctx := context.Background()

	agg, err := svc.Aggregate(ctx, "A", "2024-01")
	require.NoError(t, err)
	require.True(t, agg.TotalNet.Equal(dec("3395")))

	bills, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, bills)

	_, err = svc.Aggregate(ctx, "nobody", "2024-01")
	require.ErrorIs(t, err, ErrCounterpartyNotFound)
}

func TestTransitionStatusRejectsInvalidMoves(t *testing.T) {
	svc, store := newTestService(t)
	seedAgency(store)
	ctx := context.Background()

	bill, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01"})
	require.NoError(t, err)
	_, err = svc.TransitionStatus(ctx, bill.ID, StatusPaid)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = svc.TransitionStatus(ctx, "nope", StatusPaid)
	require.ErrorIs(t, err, ErrBillNotFound)
}

func TestTransitionStatusStampsUpdatedAtInStore(t *testing.T) {
	svc, store := newTestService(t)
	seedAgency(store)
	ctx := context.Background()

	bill, err := svc.Generate(ctx, GenerateInput{CounterpartyID: "A", Period: "2024-01"})
	require.NoError(t, err)

	later := time.Date(2024, 2, 5, 8, 30, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return later })
	updated, err := svc.TransitionStatus(ctx, bill.ID, StatusPendingReview)
	require.NoError(t, err)
	require.Equal(t, later, updated.UpdatedAt)

	stored, err := store.Get(ctx, bill.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, stored.Status)
	require.Equal(t, later, stored.UpdatedAt)
	require.True(t, stored.CreatedAt.Before(stored.UpdatedAt))
}
