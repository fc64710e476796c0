package utils

import (
	"fmt"
	"math"

	"worldpay-checkout/models"
)

const Currency = "GBP"

func Round(value float64) float64 {
	return math.Round(value*100) / 100
}

// LineTotal is unit price times quantity; a missing quantity counts as one.
func LineTotal(item models.PaymentItem) float64 {
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	return Round(item.Price * float64(qty))
}

func PaymentTotal(items []models.PaymentItem) float64 {
	var total float64
	for _, item := range items {
		total += LineTotal(item)
	}
	return Round(total)
}

// FormatAmount renders an amount the way Apple Pay expects it: a decimal string.
func FormatAmount(value float64) string {
	return fmt.Sprintf("%.2f", Round(value))
}
