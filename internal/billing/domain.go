package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crossbridge/crossbridge/internal/duedate"
)

// CounterpartyKind distinguishes suppliers from advertising agencies.
type CounterpartyKind string

const (
	CounterpartySupplier CounterpartyKind = "SUPPLIER"
	CounterpartyAgency   CounterpartyKind = "AGENCY"
)

// Counterparty is a supplier or agency bills are generated against.
type Counterparty struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Kind CounterpartyKind `json:"kind"`
	// CreditTerm is free text such as "day 15 of next month".
	CreditTerm   string               `json:"credit_term,omitempty"`
	RebatePeriod duedate.RebatePeriod `json:"rebate_period,omitempty"`
}

// RawRecord is one ad consumption or delivery/tail-payment line.
type RawRecord struct {
	ID             string           `json:"id"`
	CounterpartyID string           `json:"counterparty_id"`
	SubEntityID    string           `json:"sub_entity_id"`
	Period         string           `json:"period"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	Rebate         *decimal.Decimal `json:"rebate,omitempty"`
	Paid           *decimal.Decimal `json:"paid,omitempty"`
}

// BillKind is part of the bill uniqueness key.
type BillKind string

const (
	KindPayableAgency   BillKind = "PAYABLE_AGENCY"
	KindPayableSupplier BillKind = "PAYABLE_SUPPLIER"
)

// KindFor maps a counterparty to the bill kind it is settled under.
func KindFor(kind CounterpartyKind) (BillKind, bool) {
	switch kind {
	case CounterpartyAgency:
		return KindPayableAgency, true
	case CounterpartySupplier:
		return KindPayableSupplier, true
	}
	return "", false
}

// BillStatus tracks the approval lifecycle.
type BillStatus string

const (
	StatusDraft         BillStatus = "DRAFT"
	StatusPendingReview BillStatus = "PENDING_REVIEW"
	StatusApproved      BillStatus = "APPROVED"
	StatusPaid          BillStatus = "PAID"
)

// Key identifies the single active bill slot.
type Key struct {
	CounterpartyID string
	Period         string
	Kind           BillKind
}

// BillLine is one sub-entity bucket persisted with the bill.
type BillLine struct {
	SubEntityID string          `json:"sub_entity_id"`
	Currency    string          `json:"currency"`
	Gross       decimal.Decimal `json:"gross"`
	Rebate      decimal.Decimal `json:"rebate"`
	Net         decimal.Decimal `json:"net"`
	Paid        decimal.Decimal `json:"paid"`
	RecordIDs   []string        `json:"record_ids"`
}

// Bill is the persisted output of one settlement for one key.
type Bill struct {
	ID               string          `json:"id"`
	Period           string          `json:"period"`
	Kind             BillKind        `json:"kind"`
	CounterpartyID   string          `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	Currency         string          `json:"currency"`
	Gross            decimal.Decimal `json:"gross"`
	Rebate           decimal.Decimal `json:"rebate"`
	Net              decimal.Decimal `json:"net"`
	Paid             decimal.Decimal `json:"paid"`
	RecordIDs        []string        `json:"record_ids"`
	Lines            []BillLine      `json:"lines"`
	Status           BillStatus      `json:"status"`
	PaymentDueDate   *time.Time      `json:"payment_due_date,omitempty"`
	RebateDueDate    *time.Time      `json:"rebate_due_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Key returns the uniqueness key of the bill.
func (b Bill) Key() Key {
	return Key{CounterpartyID: b.CounterpartyID, Period: b.Period, Kind: b.Kind}
}

// Outstanding is the net amount not yet covered by recorded payments.
func (b Bill) Outstanding() decimal.Decimal {
	return b.Net.Sub(b.Paid)
}

// ListFilter narrows bill listings. Empty fields match everything.
type ListFilter struct {
	Period         string
	Kind           BillKind
	CounterpartyID string
	Status         BillStatus
	Limit          int
}

func (f ListFilter) matches(b Bill) bool {
	if f.Period != "" && b.Period != f.Period {
		return false
	}
	if f.Kind != "" && b.Kind != f.Kind {
		return false
	}
	if f.CounterpartyID != "" && b.CounterpartyID != f.CounterpartyID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}
