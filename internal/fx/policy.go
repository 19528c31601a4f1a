package fx

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// DefaultReferenceCurrency is the reporting currency used when none is configured.
const DefaultReferenceCurrency = "CNY"

// ErrUnknownCurrency signals a code outside ISO 4217.
var ErrUnknownCurrency = errors.New("fx: unknown currency code")

// Policy describes how amounts are brought into the reference currency.
type Policy struct {
	ReferenceCurrency string
}

// DefaultPolicy returns the baseline policy.
func DefaultPolicy() Policy {
	return Policy{ReferenceCurrency: DefaultReferenceCurrency}
}

// NormalizeCurrency upper-cases and validates an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrUnknownCurrency)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return unit.String(), nil
}
