// Package duedate derives payment and rebate due dates from credit-term rules
// and rebate-period classifiers. All functions are pure.
package duedate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidRule indicates a credit-term rule outside the supported grammar.
var ErrInvalidRule = errors.New("duedate: credit term rule not recognised")

// CreditTerm is the parsed form of "day N of the month following the period".
type CreditTerm struct {
	// Day requested in the following month, 1..31. Zero when EndOfMonth is set.
	Day int
	// EndOfMonth selects the last calendar day of the following month.
	EndOfMonth bool
}

// String renders the term in its canonical English shape.
func (t CreditTerm) String() string {
	if t.EndOfMonth {
		return "end of next month"
	}
	return fmt.Sprintf("day %d of next month", t.Day)
}

var dayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bday\s+(\d{1,2})\s+of\s+(?:the\s+)?(?:next|following)\s+month\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:day\s+)?of\s+(?:the\s+)?(?:next|following)\s+month\b`),
	regexp.MustCompile(`(?i)\bnext\s+month(?:'s)?\s+(?:on\s+)?(?:day\s+)?(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\b`),
	regexp.MustCompile(`(?:次月|下月|下个月)\s*(\d{1,2})\s*(?:日|号)`),
}

var endOfMonthPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:end|last\s+day)\s+of\s+(?:the\s+)?(?:next|following)\s+month\b`),
	regexp.MustCompile(`(?:次月|下月|下个月)\s*(?:月底|月末|底)`),
}

// ParseCreditTerm reads a free-text credit-term rule.
func ParseCreditTerm(rule string) (CreditTerm, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return CreditTerm{}, ErrInvalidRule
	}
	for _, re := range dayPatterns {
		m := re.FindStringSubmatch(rule)
		if m == nil {
			continue
		}
		day, err := strconv.Atoi(m[1])
		if err != nil || day < 1 || day > 31 {
			return CreditTerm{}, fmt.Errorf("%w: day %s out of range", ErrInvalidRule, m[1])
		}
		return CreditTerm{Day: day}, nil
	}
	for _, re := range endOfMonthPatterns {
		if re.MatchString(rule) {
			return CreditTerm{EndOfMonth: true}, nil
		}
	}
	return CreditTerm{}, fmt.Errorf("%w: %q", ErrInvalidRule, rule)
}

// RebatePeriod classifies how often an agency settles rebates.
type RebatePeriod string

const (
	RebateMonthly   RebatePeriod = "MONTHLY"
	RebateQuarterly RebatePeriod = "QUARTERLY"
)

// ParseRebatePeriod accepts the canonical values case-insensitively plus the
// Chinese labels used by the agency contracts.
func ParseRebatePeriod(raw string) (RebatePeriod, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(RebateMonthly), "月度", "月结":
		return RebateMonthly, true
	case string(RebateQuarterly), "季度", "季结":
		return RebateQuarterly, true
	}
	return "", false
}
