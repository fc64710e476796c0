package card

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"worldpay-checkout/types"
)

// withCheckDigit appends the Luhn check digit to a partial number.
func withCheckDigit(partial string) string {
	for d := byte('0'); d <= '9'; d++ {
		if candidate := partial + string(d); Luhn(candidate) {
			return candidate
		}
	}
	panic("no check digit for " + partial)
}

func TestFormatNumber(t *testing.T) {
	monzo := withCheckDigit("535522123456789")

	tests := []struct {
		name    string
		raw     string
		value   string
		display string
		brand   string
		reason  string
	}{
		{"visa", "4111 1111 1111 1111", "4111111111111111", "4111 1111 1111 1111", BrandVisa, ""},
		{"mastercard", "5555-5555-5555-4444", "5555555555554444", "5555 5555 5555 4444", BrandMastercard, ""},
		{"amex", "378282246310005", "378282246310005", "3782 8224 6310 005•", BrandAmex, ""},
		{"monzo", monzo, monzo, monzo[:4] + " " + monzo[4:8] + " " + monzo[8:12] + " " + monzo[12:], BrandMonzo, ""},
		{"partial", "4111", "4111", "4111 •••• •••• ••••", BrandVisa, ReasonInvalidNumber},
		{"luhn failure", "4111111111111112", "4111111111111112", "4111 1111 1111 1112", BrandVisa, ReasonInvalidNumber},
		{"unsupported discover", "6011111111111117", "6011111111111117", "6011 1111 1111 1117", "discover", ReasonUnsupportedCard},
		{"unsupported jcb", "3530111333300000", "3530111333300000", "3530 1113 3330 0000", "jcb", ReasonUnsupportedCard},
		{"unknown range", "9999", "9999", "9999 •••• •••• ••••", "", ReasonInvalidNumber},
		{"empty", "", "", "•••• •••• •••• ••••", "", ReasonMissingNumber},
		{"capped", "4111111111111111 9999", "4111111111111111", "4111 1111 1111 1111", BrandVisa, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatNumber(tt.raw)
			if got.Value != tt.value {
				t.Errorf("value: expected %q, got %q", tt.value, got.Value)
			}
			if got.Display != tt.display {
				t.Errorf("display: expected %q, got %q", tt.display, got.Display)
			}
			if got.Brand != tt.brand {
				t.Errorf("brand: expected %q, got %q", tt.brand, got.Brand)
			}
			if got.Reason != tt.reason {
				t.Errorf("reason: expected %q, got %q", tt.reason, got.Reason)
			}
			if got.Valid != (tt.reason == "") {
				t.Errorf("valid: expected %v, got %v", tt.reason == "", got.Valid)
			}
		})
	}
}

func TestFormatNumber_DisplayAlwaysSixteenPositions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 16; n <= 40; n++ {
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteByte(byte('0' + rng.Intn(10)))
		}
		got := FormatNumber(b.String())

		groups := strings.Split(got.Display, " ")
		if len(groups) != 4 {
			t.Fatalf("%d digits: expected 4 groups, got %q", n, got.Display)
		}
		for _, g := range groups {
			if len([]rune(g)) != 4 {
				t.Fatalf("%d digits: bad group %q in %q", n, g, got.Display)
			}
		}
		if len(got.Value) != 16 {
			t.Fatalf("%d digits: expected 16 stored digits, got %d", n, len(got.Value))
		}
	}
}

func TestFormatNumber_LuhnFailureIsNeverUnsupported(t *testing.T) {
	for _, number := range []string{"4111111111111112", "5555555555554445", "378282246310006", "5355221234567890"} {
		got := FormatNumber(number)
		if Luhn(got.Value) {
			continue
		}
		if got.Reason != ReasonInvalidNumber {
			t.Errorf("%s: expected %q, got %q", number, ReasonInvalidNumber, got.Reason)
		}
	}
}

func TestFormatExpiry(t *testing.T) {
	june2025 := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	oct2026 := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     string
		now     time.Time
		value   string
		display string
		month   int
		year    int
		reason  string
	}{
		{"clamps month", "13/25", june2025, "13/25", "12 / 25", 12, 2025, ""},
		{"clamped month in the past", "13/25", oct2026, "13/25", "12 / 25", 12, 2025, ReasonExpiryInPast},
		{"empty", "", june2025, "", "•• / ••", 0, 0, ReasonMissingExpiry},
		{"month only", "05", june2025, "05", "05 / ••", 5, 0, ReasonMissingYear},
		{"month and slash", "05/", june2025, "05/", "05 / ••", 5, 0, ReasonMissingYear},
		{"no separator", "0525", june2025, "05", "05 / ••", 5, 0, ReasonMissingYear},
		{"four digit year", "05/2030", june2025, "05/2030", "05 / 30", 5, 2030, ""},
		{"current month", "06/25", june2025, "06/25", "06 / 25", 6, 2025, ""},
		{"last month", "05/25", june2025, "05/25", "05 / 25", 5, 2025, ReasonExpiryInPast},
		{"junk stripped", "ab12/2x7", june2025, "12/27", "12 / 27", 12, 2027, ""},
		{"long year truncated", "01/203099", june2025, "01/2030", "01 / 30", 1, 2030, ""},
		{"zero month", "00/30", june2025, "00/30", "00 / 30", 0, 2030, ReasonMissingExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatExpiry(tt.raw, tt.now)
			if got.Value != tt.value || got.Display != tt.display {
				t.Errorf("expected %q/%q, got %q/%q", tt.value, tt.display, got.Value, got.Display)
			}
			if got.Month != tt.month || got.Year != tt.year {
				t.Errorf("expected %d/%d, got %d/%d", tt.month, tt.year, got.Month, got.Year)
			}
			if got.Reason != tt.reason || got.Valid != (tt.reason == "") {
				t.Errorf("expected reason %q, got %q (valid=%v)", tt.reason, got.Reason, got.Valid)
			}
		})
	}
}

func TestFormatCVC(t *testing.T) {
	tests := []struct {
		raw, brand, value, display string
		valid                      bool
	}{
		{"123", BrandAmex, "123", "123•", false},
		{"1234", BrandAmex, "1234", "1234", true},
		{"123", BrandVisa, "123", "123", true},
		{"12", BrandMastercard, "12", "12•", false},
		{"1234", BrandVisa, "123", "123", true},
		{"1a2b3", "", "123", "123", true},
		{"", BrandMonzo, "", "•••", false},
	}
	for _, tt := range tests {
		got := FormatCVC(tt.raw, tt.brand)
		if got.Value != tt.value || got.Display != tt.display || got.Valid != tt.valid {
			t.Errorf("FormatCVC(%q, %q) = %+v", tt.raw, tt.brand, got)
		}
		if !tt.valid && got.Reason != ReasonInvalidCVC {
			t.Errorf("FormatCVC(%q, %q) reason %q", tt.raw, tt.brand, got.Reason)
		}
	}
}

func TestFormatPhone(t *testing.T) {
	got := FormatPhone("07400 123456", "")
	if !got.Valid {
		t.Fatalf("expected valid phone, got %+v", got)
	}
	if got.Value != "+447400123456" {
		t.Errorf("expected E.164 value, got %q", got.Value)
	}

	bad := FormatPhone("12345", DefaultRegion)
	if bad.Valid || bad.Reason != ReasonInvalidPhone {
		t.Errorf("expected invalid phone, got %+v", bad)
	}
	if bad.Value != "12345" {
		t.Errorf("invalid phone should keep raw value, got %q", bad.Value)
	}
}

func TestFormatEmail(t *testing.T) {
	tests := map[string]bool{
		"a@b.co":            true,
		"jo.bloggs@shop.uk": true,
		"a@b":               false,
		"a b@c.d":           false,
		"a@@b.c":            false,
		"a@b@c.d":           false,
		"":                  false,
	}
	for email, want := range tests {
		if got := FormatEmail(email); got.Valid != want {
			t.Errorf("FormatEmail(%q) valid = %v, want %v", email, got.Valid, want)
		}
	}
}

func TestFormatName(t *testing.T) {
	if got := FormatName(""); got.Valid || got.Display != "NAME" || got.Reason != ReasonMissingName {
		t.Errorf("unexpected empty name result %+v", got)
	}
	if got := FormatName("Jo Bloggs"); !got.Valid || got.Display != "Jo Bloggs" {
		t.Errorf("unexpected name result %+v", got)
	}
}

func TestForm(t *testing.T) {
	now := func() time.Time { return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC) }
	f := NewForm(DefaultRegion, now)
	opts := types.PaymentOptions{RequestPayerEmail: true}

	if err := f.Validate(opts); err == nil {
		t.Fatal("expected empty form to be invalid")
	}

	mustUpdate := func(field Field, raw string) Result {
		t.Helper()
		res, err := f.Update(field, raw)
		if err != nil {
			t.Fatalf("update %s: %v", field, err)
		}
		return res
	}

	mustUpdate(FieldName, "Jo Bloggs")
	mustUpdate(FieldCVC, "123")
	mustUpdate(FieldNumber, "378282246310005")
	if f.Field(FieldCVC).Valid {
		t.Error("CVC should be re-checked as amex after the number changes")
	}
	mustUpdate(FieldCVC, "1234")
	mustUpdate(FieldExpiry, "07/27")
	mustUpdate(FieldEmail, "jo@example.com")

	if err := f.Validate(opts); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}

	if _, err := f.Update(Field("postcode"), "CF10"); err == nil {
		t.Error("expected unknown field error")
	}

	res := f.PaymentResponse(opts, "+441234567890")
	if res.MethodName != types.MethodBasicCard {
		t.Errorf("unexpected method %q", res.MethodName)
	}
	if res.Details.ExpiryMonth != "7" || res.Details.ExpiryYear != "2027" {
		t.Errorf("unexpected expiry %s/%s", res.Details.ExpiryMonth, res.Details.ExpiryYear)
	}
	if res.PayerEmail != "jo@example.com" || res.PayerPhone != "" {
		t.Errorf("unexpected payer contact %q %q", res.PayerEmail, res.PayerPhone)
	}
	if res.Details.BillingAddress.Phone != "+441234567890" {
		t.Errorf("expected fallback phone, got %q", res.Details.BillingAddress.Phone)
	}

	f.Reset()
	if f.Field(FieldNumber).Value != "" {
		t.Error("reset should clear the number")
	}
}
