package checkout

import (
	"worldpay-checkout/models"
	"worldpay-checkout/types"
	"worldpay-checkout/utils"
)

const (
	ApplePayVersion = 1
	DefaultCountry  = "GB"
)

var (
	applePayNetworks     = []string{"visa", "masterCard", "amex"}
	applePayCapabilities = []string{"supports3DS", "supportsEMV", "supportsCredit", "supportsDebit"}
	applePayContactField = []string{"postalAddress", "email", "phone", "name"}
)

func paymentDetails(record *models.PaymentRecord) types.PaymentDetails {
	details := types.PaymentDetails{
		ID: record.ID,
		Total: types.PaymentItem{
			Label:  "Total",
			Amount: types.CurrencyAmount{Currency: utils.Currency, Value: utils.PaymentTotal(record.Items)},
		},
	}
	for _, item := range record.Items {
		details.DisplayItems = append(details.DisplayItems, types.PaymentItem{
			Label:  item.Title,
			Amount: types.CurrencyAmount{Currency: utils.Currency, Value: utils.LineTotal(item)},
		})
	}
	return details
}

func paymentOptions(record *models.PaymentRecord) types.PaymentOptions {
	if record.Customer == nil {
		return types.PaymentOptions{}
	}
	return types.PaymentOptions{
		RequestPayerName:  record.Customer.RequestName,
		RequestPayerEmail: record.Customer.RequestEmail,
		RequestPayerPhone: record.Customer.RequestPhone,
	}
}

func applePayRequest(record *models.PaymentRecord, merchantName string) types.ApplePayPaymentRequest {
	req := types.ApplePayPaymentRequest{
		CountryCode:                  DefaultCountry,
		CurrencyCode:                 utils.Currency,
		SupportedNetworks:            applePayNetworks,
		MerchantCapabilities:         applePayCapabilities,
		RequiredBillingContactFields: applePayContactField,
		Total: types.ApplePayLineItem{
			Label:  merchantName,
			Amount: utils.FormatAmount(utils.PaymentTotal(record.Items)),
		},
		LineItems: make([]types.ApplePayLineItem, 0, len(record.Items)),
	}
	for _, item := range record.Items {
		req.LineItems = append(req.LineItems, types.ApplePayLineItem{
			Type:   "final",
			Label:  item.Title,
			Amount: utils.FormatAmount(utils.LineTotal(item)),
		})
	}
	if c := record.Customer; c != nil {
		req.BillingContact = &types.ApplePayContact{
			EmailAddress: c.Email,
			PhoneNumber:  c.Phone,
			GivenName:    c.Name,
		}
	}
	return req
}
