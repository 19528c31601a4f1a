package billing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Bucket is the reduction of every record for one sub-entity.
type Bucket struct {
	SubEntityID string          `json:"sub_entity_id"`
	Currency    string          `json:"currency"`
	Gross       decimal.Decimal `json:"gross"`
	Rebate      decimal.Decimal `json:"rebate"`
	Net         decimal.Decimal `json:"net"`
	Paid        decimal.Decimal `json:"paid"`
	RecordIDs   []string        `json:"record_ids"`
}

// Aggregation is the per-bucket breakdown plus counterparty totals.
type Aggregation struct {
	CounterpartyID string          `json:"counterparty_id"`
	Period         string          `json:"period"`
	Currency       string          `json:"currency"`
	Buckets        []Bucket        `json:"buckets"`
	TotalGross     decimal.Decimal `json:"total_gross"`
	TotalRebate    decimal.Decimal `json:"total_rebate"`
	TotalNet       decimal.Decimal `json:"total_net"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
}

// RecordIDs lists every included record, bucket by bucket.
func (a Aggregation) RecordIDs() []string {
	var ids []string
	for _, b := range a.Buckets {
		ids = append(ids, b.RecordIDs...)
	}
	return ids
}

// Lines converts buckets into persisted bill lines.
func (a Aggregation) Lines() []BillLine {
	lines := make([]BillLine, 0, len(a.Buckets))
	for _, b := range a.Buckets {
		lines = append(lines, BillLine{
			SubEntityID: b.SubEntityID,
			Currency:    b.Currency,
			Gross:       b.Gross,
			Rebate:      b.Rebate,
			Net:         b.Net,
			Paid:        b.Paid,
			RecordIDs:   append([]string(nil), b.RecordIDs...),
		})
	}
	return lines
}

// Aggregate filters records to the period, groups them by sub-entity and
// reduces each group. ErrNoBillableActivity is returned when nothing remains;
// callers treat it as an outcome, not a failure. Records of other
// counterparties are ignored.
func Aggregate(counterpartyID, period string, records []RawRecord) (Aggregation, error) {
	agg := Aggregation{CounterpartyID: counterpartyID, Period: period}
	seen := make(map[string]struct{}, len(records))
	index := make(map[string]int)
	for _, r := range records {
		if r.Period != period || r.CounterpartyID != counterpartyID {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			return Aggregation{}, fmt.Errorf("%w: %s", ErrDuplicateRecord, r.ID)
		}
		seen[r.ID] = struct{}{}

		ccy := strings.ToUpper(strings.TrimSpace(r.Currency))
		i, ok := index[r.SubEntityID]
		if !ok {
			i = len(agg.Buckets)
			index[r.SubEntityID] = i
			agg.Buckets = append(agg.Buckets, Bucket{SubEntityID: r.SubEntityID, Currency: ccy})
		}
		b := &agg.Buckets[i]
		if b.Currency != ccy {
			return Aggregation{}, &MixedCurrencyError{
				CounterpartyID: counterpartyID,
				Period:         period,
				SubEntityID:    r.SubEntityID,
				Currencies:     []string{b.Currency, ccy},
			}
		}
		b.Gross = b.Gross.Add(r.Amount)
		if r.Rebate != nil {
			b.Rebate = b.Rebate.Add(*r.Rebate)
		}
		if r.Paid != nil {
			b.Paid = b.Paid.Add(*r.Paid)
		}
		b.RecordIDs = append(b.RecordIDs, r.ID)
	}
	if len(agg.Buckets) == 0 {
		return Aggregation{}, ErrNoBillableActivity
	}
	sort.SliceStable(agg.Buckets, func(i, j int) bool {
		return agg.Buckets[i].SubEntityID < agg.Buckets[j].SubEntityID
	})

	currencies := make(map[string]struct{})
	for i := range agg.Buckets {
		b := &agg.Buckets[i]
		b.Net = b.Gross.Sub(b.Rebate)
		agg.TotalGross = agg.TotalGross.Add(b.Gross)
		agg.TotalRebate = agg.TotalRebate.Add(b.Rebate)
		agg.TotalPaid = agg.TotalPaid.Add(b.Paid)
		currencies[b.Currency] = struct{}{}
	}
	if len(currencies) > 1 {
		seenCcy := make([]string, 0, len(currencies))
		for c := range currencies {
			seenCcy = append(seenCcy, c)
		}
		sort.Strings(seenCcy)
		return Aggregation{}, &MixedCurrencyError{CounterpartyID: counterpartyID, Period: period, Currencies: seenCcy}
	}
	agg.Currency = agg.Buckets[0].Currency
	agg.TotalNet = agg.TotalGross.Sub(agg.TotalRebate)
	return agg, nil
}
