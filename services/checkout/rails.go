package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"worldpay-checkout/models"
	"worldpay-checkout/services/rails"
	"worldpay-checkout/types"
)

// RequestPayment runs the browser PaymentRequest rail end to end.
func (c *Controller) RequestPayment(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.env.PaymentRequest == nil || !c.caps.PaymentRequest {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMethodUnavailable, rails.MethodPaymentRequest)
	}
	if c.state != models.FlowNativeRequest {
		if err := c.setState(models.FlowNativeRequest); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	details := paymentDetails(c.record)
	opts := paymentOptions(c.record)
	c.busy = true
	c.mu.Unlock()

	resp, completer, err := c.env.PaymentRequest.Show(ctx, []types.PaymentMethodData{types.BasicCardMethod()}, details, opts)

	c.mu.Lock()
	c.busy = false
	switch {
	case errors.Is(err, ErrNotSupported):
		defer c.mu.Unlock()
		return c.setState(models.FlowForm)
	case errors.Is(err, ErrAborted):
		defer c.mu.Unlock()
		return c.setState(models.FlowMethodSelect)
	case err != nil:
		defer c.mu.Unlock()
		log.Printf("[Session: %s] Payment request failed: %v", c.id, err)
		c.fail(ctx, models.FlowError, MessageGeneric, err)
		return nil
	}
	return c.submitLocked(ctx, rails.FromPaymentRequest(resp, completer))
}

// BeginWallet enters the wallet rail and, when the wallet runs in-process,
// starts its session. The request is returned for clients that start it themselves.
func (c *Controller) BeginWallet(ctx context.Context) (types.ApplePayPaymentRequest, error) {
	c.mu.Lock()
	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return types.ApplePayPaymentRequest{}, err
	}
	if !c.caps.Wallet {
		c.mu.Unlock()
		return types.ApplePayPaymentRequest{}, fmt.Errorf("%w: %s", ErrMethodUnavailable, rails.MethodApplePay)
	}
	if c.state != models.FlowWallet {
		if err := c.setState(models.FlowWallet); err != nil {
			c.mu.Unlock()
			return types.ApplePayPaymentRequest{}, err
		}
	}

	req := applePayRequest(c.record, c.merchantName)
	if c.env.Wallet == nil {
		c.mu.Unlock()
		return req, nil
	}

	c.abortWallet(ctx)
	c.busy = true
	c.mu.Unlock()

	session, err := c.env.Wallet.Begin(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		log.Printf("[Session: %s] Failed to begin wallet session: %v", c.id, err)
		c.fail(ctx, models.FlowFailed, MessagePaymentFailed, err)
		return types.ApplePayPaymentRequest{}, err
	}
	if c.state != models.FlowWallet {
		// The flow moved on while the sheet was opening.
		if aerr := session.Abort(ctx); aerr != nil {
			log.Printf("[Session: %s] Failed to abort wallet session: %v", c.id, aerr)
		}
		return types.ApplePayPaymentRequest{}, fmt.Errorf("%w: wallet began in %s", ErrWrongState, c.state)
	}
	c.wallet = session
	return req, nil
}

// VerifyMerchant validates the merchant for the open wallet session. On failure
// the session is aborted and the flow fails.
func (c *Controller) VerifyMerchant(ctx context.Context, validationURL string) (interface{}, error) {
	c.mu.Lock()
	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.state != models.FlowWallet {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: merchant validation in %s", ErrWrongState, state)
	}
	session := c.wallet
	c.busy = true
	c.mu.Unlock()

	resp, err := c.backend.VerifyAppleMerchant(ctx, validationURL)
	if err == nil && session != nil {
		err = session.CompleteMerchantValidation(ctx, resp.Verification)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		log.Printf("[Session: %s] Merchant verification failed: %v", c.id, err)
		c.abortWallet(ctx)
		c.fail(ctx, models.FlowFailed, MessagePaymentFailed, err)
		return nil, fmt.Errorf("%w: %v", ErrMerchantVerification, err)
	}
	return resp.Verification, nil
}

// CancelWallet handles the payer dismissing the wallet sheet.
func (c *Controller) CancelWallet() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if c.state != models.FlowWallet {
		return fmt.Errorf("%w: no wallet session in %s", ErrWrongState, c.state)
	}
	c.wallet = nil
	return c.setState(models.FlowMethodSelect)
}
