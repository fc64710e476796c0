package card

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"worldpay-checkout/utils"
)

// FormatExpiry parses "MM/YY" or "MM/YYYY" input. Months above 12 are clamped to 12
// and two digit years are expanded with utils.ExpandTwoDigitYear.
func FormatExpiry(raw string, now time.Time) Result {
	var cleaned strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '/' {
			cleaned.WriteRune(r)
		}
	}

	parts := strings.Split(cleaned.String(), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	hadSlash := len(parts) == 2

	month := parts[0]
	if len(month) > 2 {
		month = month[:2]
	}
	if month == "" {
		return Result{Display: Mask + Mask + " / " + Mask + Mask}.verdict(ReasonMissingExpiry)
	}

	monthInt, _ := strconv.Atoi(month)
	if monthInt > 12 {
		monthInt = 12
	}

	res := Result{Value: month, Month: monthInt}
	if hadSlash {
		res.Value += "/"
	}
	display := fmt.Sprintf("%02d / ", monthInt)

	year := ""
	if hadSlash {
		year = parts[1]
		if len(year) > 4 {
			year = year[:4]
		}
	}
	if year == "" {
		res.Display = display + Mask + Mask
		return res.verdict(ReasonMissingYear)
	}

	yearInt, _ := strconv.Atoi(year)
	if len(year) == 2 {
		yearInt = utils.ExpandTwoDigitYear(yearInt, now)
	}
	res.Value += year
	res.Year = yearInt
	res.Display = display + fmt.Sprintf("%02d", yearInt%100)

	if monthInt < 1 {
		return res.verdict(ReasonMissingExpiry)
	}
	if utils.BeforeMonth(monthInt, yearInt, now) {
		return res.verdict(ReasonExpiryInPast)
	}
	return res.verdict("")
}
