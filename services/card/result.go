// Package card normalizes and validates card and contact input as it is typed.
//
// Every formatter is a pure function of its input (and, for expiry, the current
// time): it returns the value to store, the display string to show on the card
// preview, and a verdict with the reason to surface on the input element.
package card

import "strings"

// Mask fills display positions the user has not typed yet.
const Mask = "•"

// Validation reasons surfaced to the input element.
const (
	ReasonUnsupportedCard = "Unsupported card type"
	ReasonInvalidNumber   = "Invalid card number"
	ReasonMissingNumber   = "Enter a card number"
	ReasonMissingExpiry   = "Enter expiry"
	ReasonMissingYear     = "Enter a year"
	ReasonExpiryInPast    = "Date is in the past"
	ReasonInvalidCVC      = "Invalid CVC"
	ReasonMissingName     = "Enter a name"
	ReasonInvalidPhone    = "Invalid phone number"
	ReasonInvalidEmail    = "Invalid email"
)

type Result struct {
	Value   string `json:"value"`
	Display string `json:"display"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Brand   string `json:"brand,omitempty"`
	Month   int    `json:"month,omitempty"`
	Year    int    `json:"year,omitempty"`
}

func (r Result) verdict(reason string) Result {
	r.Valid = reason == ""
	r.Reason = reason
	return r
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func padMask(s string, n int) string {
	if count := len([]rune(s)); count < n {
		return s + strings.Repeat(Mask, n-count)
	}
	return s
}
