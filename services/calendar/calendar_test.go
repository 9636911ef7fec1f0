package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, NewYork)
}

func TestIsTradingDayWeekends(t *testing.T) {
	assert.False(t, IsTradingDay(nyDate(2026, time.March, 7))) // Saturday
	assert.False(t, IsTradingDay(nyDate(2026, time.March, 8))) // Sunday
	assert.True(t, IsTradingDay(nyDate(2026, time.March, 9)))  // Monday
}

func TestIsTradingDayHolidays(t *testing.T) {
	holidays := []time.Time{
		nyDate(2026, time.January, 1),   // New Year's Day
		nyDate(2026, time.January, 19),  // MLK Day, third Monday
		nyDate(2026, time.February, 16), // Washington's Birthday
		nyDate(2026, time.April, 3),     // Good Friday
		nyDate(2026, time.May, 25),      // Memorial Day
		nyDate(2026, time.June, 19),     // Juneteenth
		nyDate(2026, time.July, 3),      // Independence Day observed (Jul 4 is a Saturday)
		nyDate(2026, time.September, 7), // Labor Day
		nyDate(2026, time.November, 26), // Thanksgiving
		nyDate(2026, time.December, 25), // Christmas
	}
	for _, h := range holidays {
		assert.Falsef(t, IsTradingDay(h), "%s should be a holiday", h.Format("2006-01-02"))
	}

	// Ordinary weekdays around the holidays stay open.
	open := []time.Time{
		nyDate(2026, time.January, 2),
		nyDate(2026, time.April, 2),   // Maundy Thursday
		nyDate(2026, time.July, 6),
		nyDate(2026, time.November, 27), // day after Thanksgiving (shortened session, still open)
	}
	for _, d := range open {
		assert.Truef(t, IsTradingDay(d), "%s should be a session day", d.Format("2006-01-02"))
	}
}

func TestNewYearOnSaturdayIsNotObserved(t *testing.T) {
	// Jan 1 2022 fell on a Saturday; the exchange did not close Dec 31 2021.
	assert.True(t, IsTradingDay(nyDate(2021, time.December, 31)))
}

func TestNextExpiration(t *testing.T) {
	// A weekday session day expires same day.
	exp, err := NextExpiration(time.Date(2026, time.March, 4, 15, 0, 0, 0, NewYork))
	require.NoError(t, err)
	assert.Equal(t, "20260304", exp)

	// Saturday rolls to Monday.
	exp, err = NextExpiration(nyDate(2026, time.March, 7))
	require.NoError(t, err)
	assert.Equal(t, "20260309", exp)

	// Good Friday rolls over the weekend to Monday.
	exp, err = NextExpiration(nyDate(2026, time.April, 3))
	require.NoError(t, err)
	assert.Equal(t, "20260406", exp)
}

func TestBeforeMarketOpen(t *testing.T) {
	assert.True(t, BeforeMarketOpen(time.Date(2026, time.March, 4, 9, 29, 0, 0, NewYork)))
	assert.False(t, BeforeMarketOpen(time.Date(2026, time.March, 4, 9, 30, 0, 0, NewYork)))
	assert.False(t, BeforeMarketOpen(time.Date(2026, time.March, 4, 15, 0, 0, 0, NewYork)))
}
