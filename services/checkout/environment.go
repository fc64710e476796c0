package checkout

import (
	"context"
	"errors"

	"worldpay-checkout/models"
	"worldpay-checkout/services/capability"
	"worldpay-checkout/services/rails"
	"worldpay-checkout/types"
)

var (
	// ErrNotSupported is returned by Show when the client has no usable instrument.
	ErrNotSupported = errors.New("payment request not supported")
	// ErrAborted is returned by Show when the payer dismissed the sheet.
	ErrAborted = errors.New("payment request aborted")
)

// Backend is the part of the payment API the controller drives.
type Backend interface {
	GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error)
	SubmitWorldpay(ctx context.Context, id string, payload *models.AttemptPayload) (*models.SubmissionReply, error)
	VerifyAppleMerchant(ctx context.Context, validationURL string) (*models.MerchantVerificationResponse, error)
}

// PaymentRequester is the browser PaymentRequest API.
type PaymentRequester interface {
	capability.PaymentRequestAPI
	Show(ctx context.Context, methods []types.PaymentMethodData, details types.PaymentDetails, opts types.PaymentOptions) (types.PaymentResponse, rails.Completer, error)
}

// Wallet is the device wallet API (ApplePaySession).
type Wallet interface {
	capability.WalletAPI
	Begin(ctx context.Context, req types.ApplePayPaymentRequest) (WalletSession, error)
}

type WalletSession interface {
	CompleteMerchantValidation(ctx context.Context, verification interface{}) error
	Abort(ctx context.Context) error
}

type PopupOpener interface {
	Open(ctx context.Context, url, name string) (Popup, error)
}

type Popup interface {
	Close() error
}

// Environment is everything the controller needs from the client it runs for.
// Nil APIs are treated as unavailable.
type Environment struct {
	PaymentRequest PaymentRequester
	Wallet         Wallet
	Popups         PopupOpener
}

// DeferredPopups leaves opening and closing windows to the client, which reads
// the popup state from the session snapshot.
type DeferredPopups struct{}

func (DeferredPopups) Open(ctx context.Context, url, name string) (Popup, error) {
	return deferredPopup{}, nil
}

type deferredPopup struct{}

func (deferredPopup) Close() error { return nil }

// Observer receives flow metrics.
type Observer interface {
	ObserveTransition(from, to models.FlowState)
	ObserveSubmission(method string, outcome string)
}

// Reporter forwards error detail to the external error sink and returns an
// event id the payer can quote when giving feedback.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string) string
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(from, to models.FlowState)     {}
func (nopObserver) ObserveSubmission(method string, outcome string) {}

type nopReporter struct{}

func (nopReporter) Report(ctx context.Context, err error, tags map[string]string) string { return "" }
