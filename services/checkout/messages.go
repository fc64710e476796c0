package checkout

import (
	"context"
	"fmt"
	"log"

	"worldpay-checkout/models"
	"worldpay-checkout/services/bridge"
	"worldpay-checkout/services/rails"
)

// Deliver applies a bridge message. Messages that do not match the pending
// challenge are ignored.
func (c *Controller) Deliver(ctx context.Context, msg bridge.Message) {
	c.mu.Lock()
	c.closePopup()

	switch m := msg.(type) {
	case bridge.ThreeDSMessage:
		c.deliverThreeDS(ctx, m)
	case bridge.LoginMessage:
		c.deliverLogin(ctx, m)
	default:
		c.mu.Unlock()
	}
}

// deliverThreeDS is entered with c.mu held and releases it.
func (c *Controller) deliverThreeDS(ctx context.Context, m bridge.ThreeDSMessage) {
	ch := c.challenge
	if c.state != models.FlowChallengeThreeDS || ch == nil || ch.Kind != models.ChallengeThreeDS {
		c.mu.Unlock()
		log.Printf("[Session: %s] Ignoring 3DS message with no pending challenge", c.id)
		return
	}
	c.challenge = nil

	if m.PaymentID != ch.PaymentID {
		c.fail(ctx, models.FlowError, MessageGeneric,
			fmt.Errorf("3DS result for payment %q while %q is in flight", m.PaymentID, ch.PaymentID))
		c.mu.Unlock()
		return
	}
	if !m.Approved {
		c.fail(ctx, models.FlowFailed, MessagePaymentFailed, nil)
		c.mu.Unlock()
		return
	}

	c.email = ch.Email
	err := c.setState(models.FlowSuccess)
	c.mu.Unlock()
	if err == nil {
		c.complete(ch.PaymentID, ch.Email)
	}
}

// deliverLogin is entered with c.mu held and releases it.
func (c *Controller) deliverLogin(ctx context.Context, m bridge.LoginMessage) {
	ch := c.challenge
	if c.state != models.FlowChallengeAccount || ch == nil || ch.Kind != models.ChallengeExistingAccount {
		c.mu.Unlock()
		log.Printf("[Session: %s] Ignoring login message with no pending challenge", c.id)
		return
	}
	c.challenge = nil

	if !m.Successful {
		c.fail(ctx, models.FlowFailed, MessageLoginFailed, nil)
		c.mu.Unlock()
		return
	}

	if err := c.setState(models.FlowSubmitting); err != nil {
		c.mu.Unlock()
		log.Printf("[Session: %s] %v", c.id, err)
		return
	}
	method := c.method
	fallbackEmail := c.record.CustomerEmail()
	c.mu.Unlock()

	// The same payload goes out again now the backend session is logged in.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.attempt(context.WithoutCancel(ctx), rails.Replay(method), ch.PaymentID, ch.Payload, fallbackEmail)
	}()
}

// OpenLoginPopup opens the existing-account login page, closing any earlier popup.
func (c *Controller) OpenLoginPopup(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != models.FlowChallengeAccount || c.challenge == nil {
		return "", fmt.Errorf("%w: no login challenge in %s", ErrWrongState, c.state)
	}

	target := c.challenge.FrameURL
	if c.loginURL != nil {
		target = c.loginURL(target)
	}

	c.closePopup()
	popup, err := c.env.Popups.Open(ctx, target, LoginPopupName)
	if err != nil {
		return "", fmt.Errorf("failed to open login popup: %w", err)
	}
	c.popup = popup
	c.popupURL = target
	return c.popupURL, nil
}
