package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/crossbridge/crossbridge/internal/billing"
	"github.com/crossbridge/crossbridge/internal/duedate"
	"github.com/crossbridge/crossbridge/internal/fx"
	"github.com/crossbridge/crossbridge/internal/ledger"
	"github.com/crossbridge/crossbridge/internal/shared"
)

// fixture mirrors the seed YAML file. Money stays textual until parsed so
// fixture values never pass through float64.
type fixture struct {
	Accounts []struct {
		ID             string   `yaml:"id"`
		Name           string   `yaml:"name"`
		Currency       string   `yaml:"currency"`
		Category       string   `yaml:"category"`
		Parent         string   `yaml:"parent"`
		Balance        float64  `yaml:"balance"`
		InitialCapital *float64 `yaml:"initial_capital"`
		Rate           float64  `yaml:"rate"`
	} `yaml:"accounts"`
	Counterparties []struct {
		ID           string `yaml:"id"`
		Name         string `yaml:"name"`
		Kind         string `yaml:"kind"`
		CreditTerm   string `yaml:"credit_term"`
		RebatePeriod string `yaml:"rebate_period"`
	} `yaml:"counterparties"`
	Records []struct {
		ID           string `yaml:"id"`
		Counterparty string `yaml:"counterparty"`
		SubEntity    string `yaml:"sub_entity"`
		Period       string `yaml:"period"`
		Amount       string `yaml:"amount"`
		Currency     string `yaml:"currency"`
		Rebate       string `yaml:"rebate"`
		Paid         string `yaml:"paid"`
	} `yaml:"records"`
}

// dataset is the validated, typed form of a fixture.
type dataset struct {
	Accounts       []ledger.Account
	Counterparties []billing.Counterparty
	Records        []billing.RawRecord
}

func loadFixture(r io.Reader) (dataset, error) {
	var raw fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return dataset{}, fmt.Errorf("decode fixture: %w", err)
	}

	var ds dataset
	for _, a := range raw.Accounts {
		ccy, err := fx.NormalizeCurrency(a.Currency)
		if err != nil {
			return dataset{}, fmt.Errorf("account %s: %w", a.ID, err)
		}
		rate := a.Rate
		if rate == 0 {
			rate = 1
		}
		ds.Accounts = append(ds.Accounts, ledger.Account{
			ID:             a.ID,
			Name:           a.Name,
			Currency:       ccy,
			Category:       ledger.Category(strings.ToUpper(a.Category)),
			ParentID:       a.Parent,
			Balance:        a.Balance,
			InitialCapital: a.InitialCapital,
			Rate:           rate,
		})
	}
	if err := ledger.Validate(ds.Accounts); err != nil {
		return dataset{}, fmt.Errorf("accounts: %w", err)
	}

	known := make(map[string]struct{}, len(raw.Counterparties))
	for _, c := range raw.Counterparties {
		kind := billing.CounterpartyKind(strings.ToUpper(c.Kind))
		if _, ok := billing.KindFor(kind); !ok {
			return dataset{}, fmt.Errorf("counterparty %s: unknown kind %q", c.ID, c.Kind)
		}
		period, ok := duedate.ParseRebatePeriod(c.RebatePeriod)
		if !ok && strings.TrimSpace(c.RebatePeriod) != "" {
			return dataset{}, fmt.Errorf("counterparty %s: unknown rebate period %q", c.ID, c.RebatePeriod)
		}
		if c.CreditTerm != "" {
			if _, err := duedate.ParseCreditTerm(c.CreditTerm); err != nil {
				return dataset{}, fmt.Errorf("counterparty %s: %w", c.ID, err)
			}
		}
		known[c.ID] = struct{}{}
		ds.Counterparties = append(ds.Counterparties, billing.Counterparty{
			ID:           c.ID,
			Name:         c.Name,
			Kind:         kind,
			CreditTerm:   c.CreditTerm,
			RebatePeriod: period,
		})
	}

	for _, rec := range raw.Records {
		if _, ok := known[rec.Counterparty]; !ok {
			return dataset{}, fmt.Errorf("record %s: unknown counterparty %q", rec.ID, rec.Counterparty)
		}
		period, err := shared.ParsePeriod(rec.Period)
		if err != nil {
			return dataset{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			return dataset{}, fmt.Errorf("record %s: amount: %w", rec.ID, err)
		}
		ccy, err := fx.NormalizeCurrency(rec.Currency)
		if err != nil {
			return dataset{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		rebate, err := optionalAmount(rec.Rebate)
		if err != nil {
			return dataset{}, fmt.Errorf("record %s: rebate: %w", rec.ID, err)
		}
		paid, err := optionalAmount(rec.Paid)
		if err != nil {
			return dataset{}, fmt.Errorf("record %s: paid: %w", rec.ID, err)
		}
		ds.Records = append(ds.Records, billing.RawRecord{
			ID:             rec.ID,
			CounterpartyID: rec.Counterparty,
			SubEntityID:    rec.SubEntity,
			Period:         period.String(),
			Amount:         amount,
			Currency:       ccy,
			Rebate:         rebate,
			Paid:           paid,
		})
	}
	return ds, nil
}

func optionalAmount(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parentsFirst orders accounts so every parent precedes its children, which
// the accounts foreign key requires.
func parentsFirst(accounts []ledger.Account) []ledger.Account {
	out := make([]ledger.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.ParentID == "" {
			out = append(out, a)
		}
	}
	for _, a := range accounts {
		if a.ParentID != "" {
			out = append(out, a)
		}
	}
	return out
}
