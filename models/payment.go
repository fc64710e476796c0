package models

import "time"

type PaymentEnvironment string

const (
	EnvironmentTest PaymentEnvironment = "TEST"
	EnvironmentLive PaymentEnvironment = "LIVE"
)

type PaymentState string

const (
	PaymentStateOpen PaymentState = "OPEN"
	PaymentStatePaid PaymentState = "PAID"
)

type PaymentItem struct {
	ID       string                 `json:"id,omitempty"`
	Type     string                 `json:"type,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Title    string                 `json:"title"`
	Price    float64                `json:"price"`
	Quantity int                    `json:"quantity"`
	Sig      string                 `json:"sig,omitempty"`
}

// Customer describes who is paying and which contact fields still have to be collected.
type Customer struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	RequestName  bool   `json:"request_name"`
	RequestEmail bool   `json:"request_email"`
	RequestPhone bool   `json:"request_phone"`
}

type PaymentRecord struct {
	ID            string             `json:"id"`
	New           bool               `json:"new,omitempty"`
	Timestamp     *time.Time         `json:"timestamp,omitempty"`
	State         PaymentState       `json:"state,omitempty"`
	Environment   PaymentEnvironment `json:"environment,omitempty"`
	Customer      *Customer          `json:"customer,omitempty"`
	Items         []PaymentItem      `json:"items"`
	PaymentMethod *string            `json:"payment_method,omitempty"`
}

// Clone returns a deep copy so a draft attached to an attempt cannot be mutated afterwards.
func (p *PaymentRecord) Clone() *PaymentRecord {
	if p == nil {
		return nil
	}
	c := *p
	if p.Customer != nil {
		customer := *p.Customer
		c.Customer = &customer
	}
	if p.Items != nil {
		c.Items = make([]PaymentItem, len(p.Items))
		copy(c.Items, p.Items)
	}
	return &c
}

func (p *PaymentRecord) CustomerEmail() string {
	if p == nil || p.Customer == nil {
		return ""
	}
	return p.Customer.Email
}
