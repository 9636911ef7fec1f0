// Package calendar resolves NYSE trading days for same-day option expirations.
package calendar

import (
	"errors"
	"time"
)

// ErrNoTradingDay is returned when no valid session day exists within a year
// of the given date, which only happens on bad input.
var ErrNoTradingDay = errors.New("no valid trading day found within the next year")

// NextExpiration returns the nearest valid NYSE session day on or after now,
// formatted YYYYMMDD, for use as a same-day option expiration.
func NextExpiration(now time.Time) (string, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 0; i < 366; i++ {
		if IsTradingDay(day) {
			return day.Format("20060102"), nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return "", ErrNoTradingDay
}

// IsTradingDay reports whether the NYSE holds a regular session on the given
// date (weekends and full-day market holidays excluded).
func IsTradingDay(d time.Time) bool {
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !isMarketHoliday(d)
}

func isMarketHoliday(d time.Time) bool {
	y, m, day := d.Year(), d.Month(), d.Day()

	switch {
	// New Year's Day. When Jan 1 is a Saturday the exchange does not
	// observe it; a Sunday pushes it to Monday.
	case m == time.January && day == 1 && d.Weekday() != time.Saturday:
		return true
	case m == time.January && day == 2 && d.Weekday() == time.Monday:
		return true

	// Martin Luther King Jr. Day: third Monday of January.
	case m == time.January && d.Weekday() == time.Monday && (day-1)/7 == 2:
		return true

	// Washington's Birthday: third Monday of February.
	case m == time.February && d.Weekday() == time.Monday && (day-1)/7 == 2:
		return true

	// Memorial Day: last Monday of May.
	case m == time.May && d.Weekday() == time.Monday && day+7 > 31:
		return true

	// Labor Day: first Monday of September.
	case m == time.September && d.Weekday() == time.Monday && (day-1)/7 == 0:
		return true

	// Thanksgiving: fourth Thursday of November.
	case m == time.November && d.Weekday() == time.Thursday && (day-1)/7 == 3:
		return true
	}

	// Juneteenth, Independence Day and Christmas shift to the adjacent
	// weekday when they land on a weekend.
	if sameDay(d, observed(time.Date(y, time.June, 19, 0, 0, 0, 0, d.Location()))) {
		return true
	}
	if sameDay(d, observed(time.Date(y, time.July, 4, 0, 0, 0, 0, d.Location()))) {
		return true
	}
	if sameDay(d, observed(time.Date(y, time.December, 25, 0, 0, 0, 0, d.Location()))) {
		return true
	}

	// Good Friday: two days before Easter Sunday.
	if sameDay(d, easter(y, d.Location()).AddDate(0, 0, -2)) {
		return true
	}

	return false
}

// observed maps a fixed-date holiday to its observed weekday: Saturday moves
// to Friday, Sunday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// easter computes Easter Sunday for a year using the anonymous Gregorian
// algorithm.
func easter(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
