package fx

import (
	"math"
	"strings"
)

// ToReference converts amount into the reference currency using rate.
// Invalid arithmetic never escapes: a non-positive rate or a non-finite
// operand yields 0.
func ToReference(amount, rate float64) float64 {
	if !Finite(amount) || !Finite(rate) || rate <= 0 {
		return 0
	}
	out := amount * rate
	if !Finite(out) {
		return 0
	}
	return out
}

// Converter applies a Policy to single amounts.
type Converter struct {
	policy Policy
}

// NewConverter constructs a converter instance.
func NewConverter(policy Policy) *Converter {
	if strings.TrimSpace(policy.ReferenceCurrency) == "" {
		policy.ReferenceCurrency = DefaultReferenceCurrency
	}
	policy.ReferenceCurrency = strings.ToUpper(strings.TrimSpace(policy.ReferenceCurrency))
	return &Converter{policy: policy}
}

// ReferenceCurrency reports the currency amounts are converted into.
func (c *Converter) ReferenceCurrency() string {
	if c == nil {
		return DefaultReferenceCurrency
	}
	return c.policy.ReferenceCurrency
}

// Convert brings amount in ccy into the reference currency. The reference
// currency itself converts at parity whatever rate is supplied.
func (c *Converter) Convert(amount float64, ccy string, rate float64) float64 {
	if strings.EqualFold(strings.TrimSpace(ccy), c.ReferenceCurrency()) {
		rate = 1
	}
	return ToReference(amount, rate)
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
