package calendar

import "time"

// NewYork is the exchange-local zone all US-listing timestamps use.
var NewYork = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// BeforeMarketOpen reports whether t falls before the 09:30 regular session
// open, exchange-local.
func BeforeMarketOpen(t time.Time) bool {
	ny := t.In(NewYork)
	return ny.Hour() < 9 || (ny.Hour() == 9 && ny.Minute() < 30)
}
