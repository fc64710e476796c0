// Package rails unifies the results of the manual form, browser PaymentRequest and
// Apple Pay rails behind one completion contract and one attempt payload shape.
package rails

import (
	"context"
	"errors"
	"sync"

	"worldpay-checkout/types"
)

type Method string

const (
	MethodForm           Method = "form"
	MethodPaymentRequest Method = "payment_request"
	MethodApplePay       Method = "apple_pay"
)

// Status is the value handed to PaymentResponse.complete().
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrMalformedResult   = errors.New("malformed payment result")
)

// Completer acknowledges the outcome of an attempt back to the rail that produced it.
type Completer interface {
	Complete(ctx context.Context, status Status) error
}

type CompleterFunc func(ctx context.Context, status Status) error

func (f CompleterFunc) Complete(ctx context.Context, status Status) error {
	return f(ctx, status)
}

var noop = CompleterFunc(func(context.Context, Status) error { return nil })

// Result is a tagged variant: Basic is set for the form and PaymentRequest rails,
// Apple for the wallet rail.
type Result struct {
	Method    Method
	Basic     *types.PaymentResponse
	Apple     *types.ApplePayPayment
	completer Completer
}

func FromForm(resp types.PaymentResponse) Result {
	return Result{Method: MethodForm, Basic: &resp, completer: noop}
}

func FromPaymentRequest(resp types.PaymentResponse, c Completer) Result {
	return Result{Method: MethodPaymentRequest, Basic: &resp, completer: orNoop(c)}
}

func FromApplePay(payment types.ApplePayPayment, c Completer) Result {
	return Result{Method: MethodApplePay, Apple: &payment, completer: orNoop(c)}
}

// Replay is the completer-less result used when a stored attempt is resubmitted.
func Replay(method Method) Result {
	return Result{Method: method, completer: noop}
}

func orNoop(c Completer) Completer {
	if c == nil {
		return noop
	}
	return c
}

func (r Result) Complete(ctx context.Context, status Status) error {
	if r.completer == nil {
		return nil
	}
	return r.completer.Complete(ctx, status)
}

// Recorder keeps the completion status for rails that live on the other end of an
// HTTP request; the status is sent back in the response.
type Recorder struct {
	mu     sync.Mutex
	status Status
	called bool
}

func (r *Recorder) Complete(ctx context.Context, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.called = true
	return nil
}

func (r *Recorder) Status() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.called
}
