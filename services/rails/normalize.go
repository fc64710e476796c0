package rails

import (
	"fmt"
	"strconv"
	"strings"

	"worldpay-checkout/models"
	"worldpay-checkout/types"
)

// SplitName puts everything but the final token in the first name and the final
// token in the last name. A single token is treated as a first name.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// Normalize turns any rail result into the attempt payload posted to the backend.
// The draft record is not attached here; that is the controller's decision.
func Normalize(r Result, accepts string) (*models.AttemptPayload, error) {
	switch {
	case r.Basic != nil:
		return normalizeBasic(r.Basic, accepts)
	case r.Apple != nil:
		return normalizeApple(r.Apple, accepts)
	}
	return nil, fmt.Errorf("%w: empty %s result", ErrMalformedResult, r.Method)
}

func normalizeBasic(res *types.PaymentResponse, accepts string) (*models.AttemptPayload, error) {
	if res.MethodName != types.MethodBasicCard {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, res.MethodName)
	}

	month, err := strconv.Atoi(strings.TrimSpace(res.Details.ExpiryMonth))
	if err != nil {
		return nil, fmt.Errorf("%w: expiry month %q", ErrMalformedResult, res.Details.ExpiryMonth)
	}
	year, err := strconv.Atoi(strings.TrimSpace(res.Details.ExpiryYear))
	if err != nil {
		return nil, fmt.Errorf("%w: expiry year %q", ErrMalformedResult, res.Details.ExpiryYear)
	}

	payload := &models.AttemptPayload{
		Accepts: accepts,
		Card: &models.CardData{
			Name:       res.Details.CardholderName,
			ExpMonth:   month,
			ExpYear:    year,
			CardNumber: res.Details.CardNumber,
			CVC:        res.Details.CardSecurityCode,
		},
		BillingAddress: res.Details.BillingAddress,
		Email:          res.PayerEmail,
		Phone:          res.PayerPhone,
		Name:           res.PayerName,
	}
	if payload.BillingAddress == nil {
		payload.BillingAddress = &models.BillingAddress{AddressLine: []string{}}
	}
	if payload.Name != "" {
		payload.FirstName, payload.LastName = SplitName(payload.Name)
	}
	return payload, nil
}

func normalizeApple(p *types.ApplePayPayment, accepts string) (*models.AttemptPayload, error) {
	if len(p.Token) == 0 {
		return nil, fmt.Errorf("%w: missing wallet token", ErrMalformedResult)
	}
	contact := p.BillingContact
	lines := contact.AddressLines
	if lines == nil {
		lines = []string{}
	}

	return &models.AttemptPayload{
		Accepts: accepts,
		BillingAddress: &models.BillingAddress{
			AddressLine: lines,
			Country:     contact.CountryCode,
			City:        contact.Locality,
			Phone:       contact.PhoneNumber,
			PostalCode:  contact.PostalCode,
			Recipient:   strings.TrimSpace(contact.GivenName + " " + contact.FamilyName),
			Region:      contact.AdministrativeArea,
		},
		Email:     contact.EmailAddress,
		Phone:     contact.PhoneNumber,
		FirstName: contact.GivenName,
		LastName:  contact.FamilyName,
		AppleData: p.Token,
	}, nil
}
