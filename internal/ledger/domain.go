package ledger

import "github.com/crossbridge/crossbridge/internal/fx"

// Category classifies an account inside the hierarchy.
type Category string

const (
	CategoryPrimary     Category = "PRIMARY"
	CategoryVirtual     Category = "VIRTUAL"
	CategoryIndependent Category = "INDEPENDENT"
)

// Account is a read-only snapshot of one financial account.
type Account struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Currency string   `json:"currency"`
	Category Category `json:"category"`
	// ParentID is set only for virtual accounts.
	ParentID string  `json:"parent_id,omitempty"`
	Balance  float64 `json:"balance"`
	// InitialCapital is a fixed own-currency amount, unaffected by postings.
	InitialCapital *float64 `json:"initial_capital,omitempty"`
	// Rate converts one unit of Currency into the reference currency.
	Rate float64 `json:"rate"`
}

// Own is the account's own contribution before any children: balance plus
// initial capital. Non-finite parts contribute nothing.
func (a Account) Own() float64 {
	var own float64
	if fx.Finite(a.Balance) {
		own += a.Balance
	}
	if a.InitialCapital != nil && fx.Finite(*a.InitialCapital) {
		own += *a.InitialCapital
	}
	return own
}

// balance is Balance, or zero when it is NaN or infinite.
func (a Account) balance() float64 {
	if !fx.Finite(a.Balance) {
		return 0
	}
	return a.Balance
}

// NonFinite reports whether the balance or initial capital is NaN or infinite.
func (a Account) NonFinite() bool {
	if !fx.Finite(a.Balance) {
		return true
	}
	return a.InitialCapital != nil && !fx.Finite(*a.InitialCapital)
}

// RollupResult carries an aggregate balance in both currencies.
type RollupResult struct {
	AccountID         string   `json:"account_id"`
	Currency          string   `json:"currency"`
	OwnCurrencyTotal  float64  `json:"own_currency_total"`
	ReferenceTotal    float64  `json:"reference_total"`
	ChildIDs          []string `json:"child_ids,omitempty"`
	ReferenceCurrency string   `json:"reference_currency"`
	// ForeignChildIDs are children held in another currency. They count in
	// ReferenceTotal only.
	ForeignChildIDs []string `json:"foreign_child_ids,omitempty"`
	// Excluded lists accounts whose NaN or infinite amounts were left out.
	Excluded []string `json:"excluded,omitempty"`
}

// Stats summarises every account without double counting.
type Stats struct {
	ReferenceCurrency string             `json:"reference_currency"`
	TotalReference    float64            `json:"total_reference"`
	TotalsByCurrency  map[string]float64 `json:"totals_by_currency"`
	// Orphans lists virtual accounts whose parent is missing or not primary.
	// They are excluded from every total.
	Orphans []string `json:"orphans,omitempty"`
	// NonFinite lists accounts with a NaN or infinite balance or initial
	// capital. Those amounts are excluded from every total.
	NonFinite []string `json:"non_finite,omitempty"`
	Accounts  int      `json:"accounts"`
}
