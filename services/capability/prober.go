// Package capability probes which automated payment rails the current client can use.
package capability

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"worldpay-checkout/types"
	"worldpay-checkout/utils"
)

// PaymentRequestAPI is the browser PaymentRequest surface.
type PaymentRequestAPI interface {
	CanMakePayment(ctx context.Context, methods []types.PaymentMethodData, details types.PaymentDetails) (bool, error)
}

// WalletAPI is the device wallet session surface (ApplePaySession).
type WalletAPI interface {
	CanMakePayments(ctx context.Context) (bool, error)
}

type Capabilities struct {
	PaymentRequest bool `json:"payment_request"`
	Wallet         bool `json:"wallet"`
}

// Any reports whether at least one automated rail is usable.
func (c Capabilities) Any() bool {
	return c.PaymentRequest || c.Wallet
}

// Prober runs both probes. Either API may be nil when the client lacks it.
type Prober struct {
	paymentRequest PaymentRequestAPI
	wallet         WalletAPI
}

func NewProber(pr PaymentRequestAPI, wallet WalletAPI) *Prober {
	return &Prober{paymentRequest: pr, wallet: wallet}
}

// Probe never fails: a missing API or a probe error resolves to "not usable".
func (p *Prober) Probe(ctx context.Context) Capabilities {
	var caps Capabilities
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		caps.PaymentRequest = p.probePaymentRequest(gctx)
		return nil
	})
	g.Go(func() error {
		caps.Wallet = p.probeWallet(gctx)
		return nil
	})
	g.Wait()

	return caps
}

func (p *Prober) probePaymentRequest(ctx context.Context) bool {
	if p.paymentRequest == nil {
		return false
	}
	details := types.PaymentDetails{
		Total: types.PaymentItem{
			Label:  "Total",
			Amount: types.CurrencyAmount{Currency: utils.Currency, Value: 0},
		},
	}
	ok, err := p.paymentRequest.CanMakePayment(ctx, []types.PaymentMethodData{types.BasicCardMethod()}, details)
	if err != nil {
		log.Printf("Payment request probe failed: %v", err)
		return false
	}
	return ok
}

func (p *Prober) probeWallet(ctx context.Context) bool {
	if p.wallet == nil {
		return false
	}
	ok, err := p.wallet.CanMakePayments(ctx)
	if err != nil {
		log.Printf("Wallet probe failed: %v", err)
		return false
	}
	return ok
}

// Static answers probes from flags the client reported itself.
type Static struct {
	Available bool
}

func (s Static) CanMakePayment(ctx context.Context, methods []types.PaymentMethodData, details types.PaymentDetails) (bool, error) {
	return s.Available, nil
}

func (s Static) CanMakePayments(ctx context.Context) (bool, error) {
	return s.Available, nil
}
