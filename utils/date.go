package utils

import (
	"time"
)

// ExpandTwoDigitYear places a two digit card year in the current millennium.
// The formula is floor(year/1000)*1000 + yy, so "99" typed in 2026 becomes 2099
// and the result does not roll over correctly near a millennium boundary.
func ExpandTwoDigitYear(yy int, now time.Time) int {
	return (now.Year()/1000)*1000 + yy
}

// BeforeMonth reports whether month/year is strictly before the month containing now.
func BeforeMonth(month, year int, now time.Time) bool {
	if year != now.Year() {
		return year < now.Year()
	}
	return month < int(now.Month())
}
