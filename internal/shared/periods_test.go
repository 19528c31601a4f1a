package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod(" 2024-02 ")
	require.NoError(t, err)
	require.Equal(t, Period{Year: 2024, Month: time.February}, p)
	require.Equal(t, "2024-02", p.String())

	for _, bad := range []string{"", "2024-13", "2024/01", "24-01", "2024-1-1"} {
		_, err := ParsePeriod(bad)
		require.Truef(t, errors.Is(err, ErrInvalidPeriod), "input %q", bad)
	}
}

func TestPeriodArithmetic(t *testing.T) {
	dec := MustParsePeriod("2023-12")
	require.Equal(t, "2024-01", dec.Next().String())
	require.Equal(t, "2023-10", dec.AddMonths(-2).String())
	require.Equal(t, "2025-02", dec.AddMonths(14).String())

	require.Equal(t, 1, MustParsePeriod("2024-03").Quarter())
	require.Equal(t, "2024-06", MustParsePeriod("2024-04").QuarterEnd().String())
	require.Equal(t, "2024-12", MustParsePeriod("2024-10").QuarterEnd().String())
}

func TestPeriodDatesClampToMonth(t *testing.T) {
	feb := MustParsePeriod("2024-02")
	require.Equal(t, 29, feb.LastDay())
	require.Equal(t, 28, MustParsePeriod("2023-02").LastDay())
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), feb.Date(31))
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), feb.Date(0))
	require.Equal(t, feb.Date(29), feb.EndDate())
}

func TestSettlementLockKey(t *testing.T) {
	require.Equal(t, "settlement:AGENCY:2024-01:cp-1:lock", SettlementLockKey("cp-1", "2024-01", "AGENCY"))
}
