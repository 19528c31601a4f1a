package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func rebateOf(amount string, pct string) *decimal.Decimal {
	d := dec(amount).Mul(dec(pct)).Div(decimal.NewFromInt(100))
	return &d
}

func TestAggregateScenario(t *testing.T) {
	records := []RawRecord{
		{ID: "r1", CounterpartyID: "A", SubEntityID: "acct-1", Period: "2024-01", Amount: dec("2000"), Currency: "USD", Rebate: rebateOf("2000", "3")},
		{ID: "r2", CounterpartyID: "A", SubEntityID: "acct-1", Period: "2024-01", Amount: dec("1500"), Currency: "USD", Rebate: rebateOf("1500", "3")},
	}
	agg, err := Aggregate("A", "2024-01", records)
	require.NoError(t, err)
	require.True(t, agg.TotalGross.Equal(dec("3500")))
	require.True(t, agg.TotalRebate.Equal(dec("105")))
	require.True(t, agg.TotalNet.Equal(dec("3395")))
	require.Equal(t, "USD", agg.Currency)
	require.Equal(t, []string{"r1", "r2"}, agg.RecordIDs())
}

func TestAggregateGroupsAndConserves(t *testing.T) {
	records := []RawRecord{
		{ID: "a", CounterpartyID: "A", SubEntityID: "acct-2", Period: "2024-03", Amount: dec("100.10"), Currency: "usd", Rebate: decPtr("1.01")},
		{ID: "b", CounterpartyID: "A", SubEntityID: "acct-1", Period: "2024-03", Amount: dec("50.05"), Currency: "USD"},
		{ID: "c", CounterpartyID: "A", SubEntityID: "acct-2", Period: "2024-03", Amount: dec("0.20"), Currency: "USD", Rebate: decPtr("0.02"), Paid: decPtr("0.10")},
		{ID: "d", CounterpartyID: "A", SubEntityID: "acct-1", Period: "2024-02", Amount: dec("999"), Currency: "USD"},
		{ID: "e", CounterpartyID: "B", SubEntityID: "acct-1", Period: "2024-03", Amount: dec("999"), Currency: "USD"},
	}
	agg, err := Aggregate("A", "2024-03", records)
	require.NoError(t, err)
	require.Len(t, agg.Buckets, 2)
	require.Equal(t, "acct-1", agg.Buckets[0].SubEntityID)
	require.Equal(t, "acct-2", agg.Buckets[1].SubEntityID)
	require.Equal(t, []string{"a", "c"}, agg.Buckets[1].RecordIDs)
	require.True(t, agg.Buckets[1].Net.Equal(dec("99.27")))
	require.True(t, agg.TotalPaid.Equal(dec("0.10")))

	sumNet := decimal.Zero
	for _, b := range agg.Buckets {
		require.True(t, b.Gross.Sub(b.Rebate).Equal(b.Net))
		sumNet = sumNet.Add(b.Net)
	}
	require.True(t, agg.TotalGross.Sub(agg.TotalRebate).Equal(agg.TotalNet))
	require.True(t, sumNet.Equal(agg.TotalNet))
	require.Len(t, agg.Lines(), 2)
}

func TestAggregateNoBillableActivity(t *testing.T) {
	_, err := Aggregate("A", "2024-01", nil)
	require.ErrorIs(t, err, ErrNoBillableActivity)

	_, err = Aggregate("A", "2024-01", []RawRecord{{ID: "x", CounterpartyID: "A", Period: "2023-12", Amount: dec("1"), Currency: "USD"}})
	require.ErrorIs(t, err, ErrNoBillableActivity)
}

func TestAggregateMixedCurrency(t *testing.T) {
	cases := []struct {
		name      string
		records   []RawRecord
		subEntity string
	}{
		{
			name: "within bucket",
			records: []RawRecord{
				{ID: "1", CounterpartyID: "A", SubEntityID: "s", Period: "2024-01", Amount: dec("1"), Currency: "USD"},
				{ID: "2", CounterpartyID: "A", SubEntityID: "s", Period: "2024-01", Amount: dec("1"), Currency: "EUR"},
			},
			subEntity: "s",
		},
		{
			name: "across buckets",
			records: []RawRecord{
				{ID: "1", CounterpartyID: "A", SubEntityID: "s1", Period: "2024-01", Amount: dec("1"), Currency: "USD"},
				{ID: "2", CounterpartyID: "A", SubEntityID: "s2", Period: "2024-01", Amount: dec("1"), Currency: "CNY"},
			},
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate("A", "2024-01", tt.records)
			var mixed *MixedCurrencyError
			require.True(t, errors.As(err, &mixed))
			require.Equal(t, tt.subEntity, mixed.SubEntityID)
			require.Len(t, mixed.Currencies, 2)
		})
	}
}

func TestAggregateRejectsDuplicateRecords(t *testing.T) {
	r := RawRecord{ID: "dup", CounterpartyID: "A", SubEntityID: "s", Period: "2024-01", Amount: dec("1"), Currency: "USD"}
	_, err := Aggregate("A", "2024-01", []RawRecord{r, r})
	require.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestValidateStatusTransition(t *testing.T) {
	cases := []struct {
		from, to BillStatus
		ok       bool
	}{
		{StatusDraft, StatusPendingReview, true},
		{StatusPendingReview, StatusApproved, true},
		{StatusPendingReview, StatusDraft, true},
		{StatusApproved, StatusPaid, true},
		{StatusDraft, StatusPaid, false},
		{StatusPaid, StatusDraft, false},
		{StatusApproved, StatusDraft, false},
		{StatusPaid, StatusPaid, true},
	}
	for _, tt := range cases {
		err := ValidateStatusTransition(tt.from, tt.to)
		if tt.ok {
			require.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			require.ErrorIs(t, err, ErrInvalidStatusTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}
