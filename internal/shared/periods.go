package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPeriod indicates a settlement period string is not YYYY-MM.
var ErrInvalidPeriod = errors.New("period must use YYYY-MM")

const periodLayout = "2006-01"

// Period identifies one calendar settlement month.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod reads a YYYY-MM settlement period.
func ParsePeriod(code string) (Period, error) {
	code = strings.TrimSpace(code)
	t, err := time.Parse(periodLayout, code)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, code)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// MustParsePeriod is ParsePeriod for literals known to be valid.
func MustParsePeriod(code string) Period {
	p, err := ParsePeriod(code)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts the period, rolling the year as needed.
func (p Period) AddMonths(n int) Period {
	t := p.Start().AddDate(0, n, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// Next is the calendar month following p.
func (p Period) Next() Period {
	return p.AddMonths(1)
}

// Quarter returns 1..4.
func (p Period) Quarter() int {
	return (int(p.Month)-1)/3 + 1
}

// QuarterEnd is the last month of the quarter containing p.
func (p Period) QuarterEnd() Period {
	return Period{Year: p.Year, Month: time.Month(p.Quarter() * 3)}
}

// LastDay is the number of days in the period's month.
func (p Period) LastDay() int {
	return p.Start().AddDate(0, 1, -1).Day()
}

// Date builds a date inside the period, clamping day to the month length.
func (p Period) Date(day int) time.Time {
	if day < 1 {
		day = 1
	}
	if last := p.LastDay(); day > last {
		day = last
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}

// EndDate is the last calendar day of the period.
func (p Period) EndDate() time.Time {
	return p.Date(p.LastDay())
}
