package card

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is the numbering plan phone input is interpreted against.
const DefaultRegion = "GB"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func FormatName(raw string) Result {
	res := Result{Value: raw, Display: raw}
	if raw == "" {
		res.Display = "NAME"
		return res.verdict(ReasonMissingName)
	}
	return res.verdict("")
}

// FormatPhone formats a phone number for display and stores it as E.164 once it
// is a valid number for region.
func FormatPhone(raw, region string) Result {
	if region == "" {
		region = DefaultRegion
	}
	res := Result{Value: raw, Display: raw}

	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return res.verdict(ReasonInvalidPhone)
	}
	res.Display = phonenumbers.Format(num, phonenumbers.NATIONAL)
	if !phonenumbers.IsValidNumber(num) {
		return res.verdict(ReasonInvalidPhone)
	}
	res.Value = phonenumbers.Format(num, phonenumbers.E164)
	return res.verdict("")
}

// ValidEmail is a structural check only: local@domain.tld, no whitespace, one @.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func FormatEmail(raw string) Result {
	res := Result{Value: raw, Display: raw}
	if !ValidEmail(raw) {
		return res.verdict(ReasonInvalidEmail)
	}
	return res.verdict("")
}
