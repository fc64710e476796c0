package card

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"worldpay-checkout/models"
	"worldpay-checkout/types"
)

type Field string

const (
	FieldName   Field = "name"
	FieldNumber Field = "number"
	FieldExpiry Field = "expiry"
	FieldCVC    Field = "cvc"
	FieldPhone  Field = "phone"
	FieldEmail  Field = "email"
)

var ErrUnknownField = errors.New("unknown card form field")

// ValidationError names the first field that blocks a form submission.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Form is the CardInput record for one manual card entry. Display strings are
// derived from the stored values on every update and never read back.
// A Form is not safe for concurrent use.
type Form struct {
	region string
	now    func() time.Time
	fields map[Field]Result
}

func NewForm(region string, now func() time.Time) *Form {
	if now == nil {
		now = time.Now
	}
	f := &Form{region: region, now: now, fields: make(map[Field]Result)}
	f.Reset()
	return f
}

// Reset puts every field back to its empty state.
func (f *Form) Reset() {
	f.fields[FieldName] = FormatName("")
	f.fields[FieldNumber] = FormatNumber("")
	f.fields[FieldExpiry] = FormatExpiry("", f.now())
	f.fields[FieldCVC] = FormatCVC("", "")
	f.fields[FieldPhone] = FormatPhone("", f.region)
	f.fields[FieldEmail] = FormatEmail("")
}

// Update runs one keystroke through the matching formatter and stores the result.
func (f *Form) Update(field Field, raw string) (Result, error) {
	var res Result
	switch field {
	case FieldName:
		res = FormatName(raw)
	case FieldNumber:
		res = FormatNumber(raw)
		// The brand decides the CVC length, so re-check what was already typed.
		f.fields[FieldCVC] = FormatCVC(f.fields[FieldCVC].Value, res.Brand)
	case FieldExpiry:
		res = FormatExpiry(raw, f.now())
	case FieldCVC:
		res = FormatCVC(raw, f.fields[FieldNumber].Brand)
	case FieldPhone:
		res = FormatPhone(raw, f.region)
	case FieldEmail:
		res = FormatEmail(raw)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	f.fields[field] = res
	return res, nil
}

func (f *Form) Field(field Field) Result {
	return f.fields[field]
}

func (f *Form) Brand() string {
	return f.fields[FieldNumber].Brand
}

// Snapshot copies the current field results.
func (f *Form) Snapshot() map[Field]Result {
	out := make(map[Field]Result, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return out
}

// Validate returns the first invalid field the form needs for these options.
func (f *Form) Validate(opts types.PaymentOptions) error {
	required := []Field{FieldName, FieldNumber, FieldExpiry, FieldCVC}
	if opts.RequestPayerPhone {
		required = append(required, FieldPhone)
	}
	if opts.RequestPayerEmail {
		required = append(required, FieldEmail)
	}
	for _, field := range required {
		if res := f.fields[field]; !res.Valid {
			return &ValidationError{Field: field, Reason: res.Reason}
		}
	}
	return nil
}

// PaymentResponse builds the basic-card result for the manual form rail.
// fallbackPhone is used for the billing address when no phone was collected.
func (f *Form) PaymentResponse(opts types.PaymentOptions, fallbackPhone string) types.PaymentResponse {
	name := f.fields[FieldName].Value
	expiry := f.fields[FieldExpiry]

	phone := fallbackPhone
	if p := f.fields[FieldPhone]; p.Valid {
		phone = p.Value
	}

	res := types.PaymentResponse{
		MethodName: types.MethodBasicCard,
		Details: types.CardDetails{
			BillingAddress: &models.BillingAddress{
				AddressLine: []string{},
				Phone:       phone,
				Recipient:   name,
			},
			CardNumber:       f.fields[FieldNumber].Value,
			CardholderName:   name,
			CardSecurityCode: f.fields[FieldCVC].Value,
			ExpiryMonth:      strconv.Itoa(expiry.Month),
			ExpiryYear:       strconv.Itoa(expiry.Year),
		},
		PayerName: name,
	}
	if opts.RequestPayerPhone {
		res.PayerPhone = f.fields[FieldPhone].Value
	}
	if opts.RequestPayerEmail {
		res.PayerEmail = f.fields[FieldEmail].Value
	}
	return res
}
