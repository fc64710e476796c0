package types

import (
	"encoding/json"

	"worldpay-checkout/models"
)

// MethodBasicCard is the PaymentRequest method identifier shared by the manual form
// and the browser autofill rail.
const MethodBasicCard = "basic-card"

// CardDetails mirrors the basic-card response details of a PaymentRequest.
type CardDetails struct {
	BillingAddress   *models.BillingAddress `json:"billingAddress,omitempty"`
	CardNumber       string                 `json:"cardNumber"`
	CardholderName   string                 `json:"cardholderName"`
	CardSecurityCode string                 `json:"cardSecurityCode"`
	ExpiryMonth      string                 `json:"expiryMonth"`
	ExpiryYear       string                 `json:"expiryYear"`
}

// PaymentResponse is what a PaymentRequest show() resolves with, minus complete().
type PaymentResponse struct {
	MethodName string      `json:"methodName"`
	Details    CardDetails `json:"details"`
	PayerName  string      `json:"payerName,omitempty"`
	PayerEmail string      `json:"payerEmail,omitempty"`
	PayerPhone string      `json:"payerPhone,omitempty"`
}

type ApplePayContact struct {
	AddressLines       []string `json:"addressLines,omitempty"`
	CountryCode        string   `json:"countryCode,omitempty"`
	Locality           string   `json:"locality,omitempty"`
	PhoneNumber        string   `json:"phoneNumber,omitempty"`
	PostalCode         string   `json:"postalCode,omitempty"`
	GivenName          string   `json:"givenName,omitempty"`
	FamilyName         string   `json:"familyName,omitempty"`
	AdministrativeArea string   `json:"administrativeArea,omitempty"`
	EmailAddress       string   `json:"emailAddress,omitempty"`
}

// ApplePayPayment is the authorized payment delivered by onpaymentauthorized.
type ApplePayPayment struct {
	Token          json.RawMessage `json:"token"`
	BillingContact ApplePayContact `json:"billingContact"`
}

type CurrencyAmount struct {
	Currency string  `json:"currency"`
	Value    float64 `json:"value"`
}

type PaymentItem struct {
	Label  string         `json:"label"`
	Amount CurrencyAmount `json:"amount"`
}

type PaymentMethodData struct {
	SupportedMethods string                 `json:"supportedMethods"`
	Data             map[string]interface{} `json:"data,omitempty"`
}

type PaymentDetails struct {
	ID           string        `json:"id,omitempty"`
	Total        PaymentItem   `json:"total"`
	DisplayItems []PaymentItem `json:"displayItems,omitempty"`
}

type PaymentOptions struct {
	RequestPayerName  bool `json:"requestPayerName"`
	RequestPayerEmail bool `json:"requestPayerEmail"`
	RequestPayerPhone bool `json:"requestPayerPhone"`
}

type ApplePayLineItem struct {
	Type   string `json:"type,omitempty"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type ApplePayPaymentRequest struct {
	CountryCode                  string             `json:"countryCode"`
	CurrencyCode                 string             `json:"currencyCode"`
	SupportedNetworks            []string           `json:"supportedNetworks"`
	MerchantCapabilities         []string           `json:"merchantCapabilities"`
	RequiredBillingContactFields []string           `json:"requiredBillingContactFields"`
	Total                        ApplePayLineItem   `json:"total"`
	LineItems                    []ApplePayLineItem `json:"lineItems"`
	BillingContact               *ApplePayContact   `json:"billingContact,omitempty"`
}

// BasicCardMethod is the method data used for both the capability probe and real requests.
func BasicCardMethod() PaymentMethodData {
	return PaymentMethodData{
		SupportedMethods: MethodBasicCard,
		Data: map[string]interface{}{
			"supportedNetworks": []string{"visa", "mastercard", "amex"},
		},
	}
}
