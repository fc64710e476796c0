package checkout

import (
	"context"

	"worldpay-checkout/services/capability"
	"worldpay-checkout/services/rails"
	"worldpay-checkout/types"
)

// RemoteEnvironment is the environment of a client reached over HTTP. The
// client probes its own APIs and reports the flags; it shows the payment sheet
// and the wallet itself and posts the results back through Submit.
func RemoteEnvironment(caps capability.Capabilities) Environment {
	return Environment{
		PaymentRequest: remotePaymentRequest{capability.Static{Available: caps.PaymentRequest}},
		Wallet:         remoteWallet{capability.Static{Available: caps.Wallet}},
		Popups:         DeferredPopups{},
	}
}

type remotePaymentRequest struct {
	capability.Static
}

func (remotePaymentRequest) Show(ctx context.Context, methods []types.PaymentMethodData, details types.PaymentDetails, opts types.PaymentOptions) (types.PaymentResponse, rails.Completer, error) {
	return types.PaymentResponse{}, nil, ErrNotSupported
}

type remoteWallet struct {
	capability.Static
}

func (remoteWallet) Begin(ctx context.Context, req types.ApplePayPaymentRequest) (WalletSession, error) {
	return remoteWalletSession{}, nil
}

// remoteWalletSession hands the merchant verification back in the response;
// the client completes validation and aborts on its side.
type remoteWalletSession struct{}

func (remoteWalletSession) CompleteMerchantValidation(ctx context.Context, verification interface{}) error {
	return nil
}

func (remoteWalletSession) Abort(ctx context.Context) error {
	return nil
}
