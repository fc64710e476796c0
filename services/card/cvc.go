package card

// CVCLength is 4 for amex and 3 for every other brand.
func CVCLength(brand string) int {
	if brand == BrandAmex {
		return 4
	}
	return 3
}

func FormatCVC(raw, brand string) Result {
	want := CVCLength(brand)
	digits := onlyDigits(raw)
	if len(digits) > want {
		digits = digits[:want]
	}
	res := Result{Value: digits, Display: padMask(digits, want)}
	if len(digits) != want {
		return res.verdict(ReasonInvalidCVC)
	}
	return res.verdict("")
}
