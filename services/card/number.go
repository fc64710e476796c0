package card

import "strings"

const maxNumberDigits = 16

// FormatNumber strips everything but digits, caps the number at 16 digits and
// groups the masked display in blocks of four.
func FormatNumber(raw string) Result {
	digits := onlyDigits(raw)
	if len(digits) > maxNumberDigits {
		digits = digits[:maxNumberDigits]
	}

	padded := []rune(padMask(digits, maxNumberDigits))
	groups := make([]string, 0, maxNumberDigits/4)
	for i := 0; i < maxNumberDigits; i += 4 {
		groups = append(groups, string(padded[i:i+4]))
	}

	res := Result{
		Value:   digits,
		Display: strings.Join(groups, " "),
		Brand:   DetectBrand(digits),
	}

	switch {
	case res.Brand != "" && !Supported(res.Brand):
		return res.verdict(ReasonUnsupportedCard)
	case digits == "":
		return res.verdict(ReasonMissingNumber)
	case !ValidNumber(digits):
		return res.verdict(ReasonInvalidNumber)
	}
	return res.verdict("")
}
