package models

type CardData struct {
	Name       string `json:"name"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CardNumber string `json:"card_number"`
	CVC        string `json:"cvc"`
}

type BillingAddress struct {
	AddressLine       []string `json:"addressLine"`
	Country           string   `json:"country"`
	City              string   `json:"city"`
	DependentLocality string   `json:"dependentLocality"`
	Organization      string   `json:"organization"`
	Phone             string   `json:"phone"`
	PostalCode        string   `json:"postalCode"`
	Recipient         string   `json:"recipient"`
	Region            string   `json:"region"`
	RegionCode        string   `json:"regionCode"`
	SortingCode       string   `json:"sortingCode"`
}

// AttemptPayload is the body of one POST /payment/worldpay/{id}/ call.
// It is built once per attempt and never modified after it has been sent.
type AttemptPayload struct {
	Accepts        string          `json:"accepts"`
	Card           *CardData       `json:"card,omitempty"`
	BillingAddress *BillingAddress `json:"billing_address,omitempty"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Name           string          `json:"name,omitempty"`
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	AppleData      interface{}     `json:"appleData,omitempty"`
	Payment        *PaymentRecord  `json:"payment,omitempty"`
}
