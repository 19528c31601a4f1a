package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crossbridge/crossbridge/internal/fx"
	"github.com/crossbridge/crossbridge/internal/shared"
)

var (
	// ErrAccountNotFound indicates the requested account is not in the snapshot.
	ErrAccountNotFound = fmt.Errorf("ledger: account %w", shared.ErrNotFound)
	// ErrInvalidHierarchy wraps every violated account invariant.
	ErrInvalidHierarchy = errors.New("ledger: invalid account hierarchy")
	// ErrInvalidAmount marks NaN or infinite balances.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
)

// Ledger computes rollups over an account snapshot. It never mutates balances.
type Ledger struct {
	conv *fx.Converter
}

// New constructs a Ledger converting into the policy's reference currency.
func New(conv *fx.Converter) *Ledger {
	if conv == nil {
		conv = fx.NewConverter(fx.DefaultPolicy())
	}
	return &Ledger{conv: conv}
}

// ReferenceCurrency exposes the reporting currency.
func (l *Ledger) ReferenceCurrency() string {
	return l.conv.ReferenceCurrency()
}

// Rollup aggregates a primary account with its virtual children. Each
// contribution is converted with the contributing account's own rate.
func (l *Ledger) Rollup(account Account, all []Account) RollupResult {
	return l.rollup(account, childIndex(all))
}

func (l *Ledger) rollup(account Account, children map[string][]Account) RollupResult {
	res := RollupResult{
		AccountID:         account.ID,
		Currency:          account.Currency,
		ReferenceCurrency: l.conv.ReferenceCurrency(),
	}
	if account.NonFinite() {
		res.Excluded = append(res.Excluded, account.ID)
	}
	res.OwnCurrencyTotal = account.Own()
	res.ReferenceTotal = l.conv.Convert(account.Own(), account.Currency, account.Rate)
	if account.Category != CategoryPrimary {
		return res
	}
	for _, child := range children[account.ID] {
		res.ChildIDs = append(res.ChildIDs, child.ID)
		if child.NonFinite() {
			res.Excluded = append(res.Excluded, child.ID)
		}
		res.ReferenceTotal += l.conv.Convert(child.balance(), child.Currency, child.Rate)
		if !sameCurrency(child.Currency, account.Currency) {
			res.ForeignChildIDs = append(res.ForeignChildIDs, child.ID)
			continue
		}
		res.OwnCurrencyTotal += child.balance()
	}
	return res
}

// RollupByID looks the account up in the snapshot before rolling it up.
func (l *Ledger) RollupByID(id string, all []Account) (RollupResult, error) {
	for _, a := range all {
		if a.ID == id {
			return l.Rollup(a, all), nil
		}
	}
	return RollupResult{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

// GlobalStats walks every account once. Virtual accounts are absorbed by their
// primary and never counted on their own.
func (l *Ledger) GlobalStats(all []Account) Stats {
	stats := Stats{
		ReferenceCurrency: l.conv.ReferenceCurrency(),
		TotalsByCurrency:  make(map[string]float64),
		Accounts:          len(all),
	}
	primaries := make(map[string]struct{})
	for _, a := range all {
		if a.Category == CategoryPrimary {
			primaries[a.ID] = struct{}{}
		}
	}
	children := childIndex(all)
	for _, a := range all {
		switch a.Category {
		case CategoryVirtual:
			if _, ok := primaries[a.ParentID]; !ok {
				stats.Orphans = append(stats.Orphans, a.ID)
			}
		case CategoryPrimary, CategoryIndependent:
			r := l.rollup(a, children)
			stats.TotalReference += r.ReferenceTotal
			stats.NonFinite = append(stats.NonFinite, r.Excluded...)
			stats.TotalsByCurrency[currencyKey(a.Currency)] += r.OwnCurrencyTotal
			if a.Category != CategoryPrimary {
				continue
			}
			for _, child := range children[a.ID] {
				if !sameCurrency(child.Currency, a.Currency) {
					stats.TotalsByCurrency[currencyKey(child.Currency)] += child.balance()
				}
			}
		}
	}
	sort.Strings(stats.Orphans)
	sort.Strings(stats.NonFinite)
	return stats
}

// Validate reports every account that breaks the hierarchy rules.
func Validate(all []Account) error {
	byID := make(map[string]Account, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}
	children := childIndex(all)
	var errs []error
	for _, a := range all {
		if a.NonFinite() {
			errs = append(errs, fmt.Errorf("%w: account %s has a non-finite balance or initial capital", ErrInvalidAmount, a.ID))
		}
		switch a.Category {
		case CategoryVirtual:
			if a.ParentID == "" {
				errs = append(errs, fmt.Errorf("%w: virtual account %s has no parent", ErrInvalidHierarchy, a.ID))
				continue
			}
			parent, ok := byID[a.ParentID]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("%w: virtual account %s references missing parent %s", ErrInvalidHierarchy, a.ID, a.ParentID))
			case parent.Category != CategoryPrimary:
				errs = append(errs, fmt.Errorf("%w: virtual account %s parent %s is %s", ErrInvalidHierarchy, a.ID, a.ParentID, parent.Category))
			case !sameCurrency(a.Currency, parent.Currency):
				errs = append(errs, fmt.Errorf("%w: virtual account %s holds %s but parent %s holds %s", ErrInvalidHierarchy, a.ID, a.Currency, a.ParentID, parent.Currency))
			}
		case CategoryPrimary:
			if a.ParentID != "" {
				errs = append(errs, fmt.Errorf("%w: primary account %s has a parent", ErrInvalidHierarchy, a.ID))
			}
		case CategoryIndependent:
			if a.ParentID != "" {
				errs = append(errs, fmt.Errorf("%w: independent account %s has a parent", ErrInvalidHierarchy, a.ID))
			}
			if len(children[a.ID]) > 0 {
				errs = append(errs, fmt.Errorf("%w: independent account %s has children", ErrInvalidHierarchy, a.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("%w: account %s has unknown category %q", ErrInvalidHierarchy, a.ID, a.Category))
		}
	}
	return errors.Join(errs...)
}

func currencyKey(ccy string) string {
	return strings.ToUpper(strings.TrimSpace(ccy))
}

func sameCurrency(a, b string) bool {
	return currencyKey(a) == currencyKey(b)
}

func childIndex(all []Account) map[string][]Account {
	out := make(map[string][]Account)
	for _, a := range all {
		if a.Category == CategoryVirtual && a.ParentID != "" {
			out[a.ParentID] = append(out[a.ParentID], a)
		}
	}
	return out
}
