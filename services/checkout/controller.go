// Package checkout drives one customer's payment from loading the record through
// rail selection, submission and any 3-D Secure or existing-account challenge.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"worldpay-checkout/models"
	"worldpay-checkout/services/capability"
	"worldpay-checkout/services/card"
	"worldpay-checkout/services/rails"
	"worldpay-checkout/types"
)

// Messages shown to the payer. Backend and transport detail never reaches them.
const (
	MessagePaymentFailed = "Payment failed"
	MessageLoginFailed   = "Login failed"
	MessageGeneric       = "Something went wrong"
)

const (
	LoginPopupName = "login"
	tracerName     = "worldpay-checkout/services/checkout"
)

var (
	ErrSubmissionInFlight   = errors.New("a payment attempt is already in flight")
	ErrBusy                 = errors.New("checkout session is busy")
	ErrWrongState           = errors.New("operation not allowed in current state")
	ErrMethodUnavailable    = errors.New("payment method unavailable")
	ErrMerchantVerification = errors.New("merchant verification failed")
	ErrNoPayment            = errors.New("no payment id or draft supplied")
	ErrPaymentNotOpen       = errors.New("payment is not open")
)

// Source says where the payment record comes from: an existing id, or a draft
// created by the embedding page.
type Source struct {
	PaymentID string                `json:"payment_id,omitempty"`
	Draft     *models.PaymentRecord `json:"payment,omitempty"`
}

type Options struct {
	Backend      Backend
	Environment  Environment
	Accepts      string
	MerchantName string
	Region       string
	Now          func() time.Time
	Observer     Observer
	Reporter     Reporter
	OnComplete   func(paymentID, email string)
	// LoginURL maps the backend's existing-account login page onto the URL the
	// popup opens. Nil opens the backend page directly.
	LoginURL     func(frame string) string
}

// Controller is the state record for one checkout session. Methods are safe for
// concurrent use; backend calls and client round trips run without the lock held,
// and the state is only changed through the transition table.
type Controller struct {
	id           string
	backend      Backend
	env          Environment
	accepts      string
	merchantName string
	observer     Observer
	reporter     Reporter
	onComplete   func(paymentID, email string)
	loginURL     func(frame string) string
	tracer       trace.Tracer

	wg sync.WaitGroup

	mu        sync.Mutex
	state     models.FlowState
	busy      bool
	source    Source
	record    *models.PaymentRecord
	caps      capability.Capabilities
	form      *card.Form
	method    rails.Method
	challenge *models.ChallengeContext
	popup     Popup
	popupURL  string
	wallet    WalletSession
	message   string
	reportID  string
	email     string
}

func NewController(sessionID string, opts Options) *Controller {
	if opts.Environment.Popups == nil {
		opts.Environment.Popups = DeferredPopups{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.Region == "" {
		opts.Region = card.DefaultRegion
	}

	return &Controller{
		id:           sessionID,
		backend:      opts.Backend,
		env:          opts.Environment,
		accepts:      opts.Accepts,
		merchantName: opts.MerchantName,
		observer:     opts.Observer,
		reporter:     opts.Reporter,
		onComplete:   opts.OnComplete,
		loginURL:     opts.LoginURL,
		tracer:       otel.Tracer(tracerName),
		state:        models.FlowLoadingPayment,
		form:         card.NewForm(opts.Region, opts.Now),
	}
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) State() models.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until background resubmissions started by bridge messages finish.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// setState must be called with c.mu held.
func (c *Controller) setState(to models.FlowState) error {
	from := c.state
	if err := checkTransition(from, to); err != nil {
		return err
	}
	if from == models.FlowChallengeAccount {
		c.closePopup()
	}
	if from == models.FlowWallet {
		c.wallet = nil
	}
	c.state = to
	c.observer.ObserveTransition(from, to)
	log.Printf("[Session: %s] %s -> %s", c.id, from, to)
	return nil
}

// fail moves to FAILED or ERROR with a payer-facing message. Must be called with c.mu held.
func (c *Controller) fail(ctx context.Context, to models.FlowState, message string, cause error) {
	c.message = message
	if cause != nil {
		c.reportID = c.reporter.Report(ctx, cause, c.reportTags())
	}
	if err := c.setState(to); err != nil {
		log.Printf("[Session: %s] Could not fail flow: %v", c.id, err)
	}
}

func (c *Controller) reportTags() map[string]string {
	tags := map[string]string{"session_id": c.id, "state": string(c.state)}
	if c.record != nil {
		tags["payment_id"] = c.record.ID
		tags["environment"] = string(c.record.Environment)
	}
	return tags
}

// guard rejects operations while an attempt or client round trip is outstanding.
func (c *Controller) guard() error {
	if c.state.InFlight() {
		return ErrSubmissionInFlight
	}
	if c.busy {
		return ErrBusy
	}
	return nil
}

func (c *Controller) closePopup() {
	if c.popup != nil {
		if err := c.popup.Close(); err != nil {
			log.Printf("[Session: %s] Failed to close popup: %v", c.id, err)
		}
	}
	c.popup = nil
	c.popupURL = ""
}

func (c *Controller) abortWallet(ctx context.Context) {
	if c.wallet == nil {
		return
	}
	if err := c.wallet.Abort(ctx); err != nil {
		log.Printf("[Session: %s] Failed to abort wallet session: %v", c.id, err)
	}
	c.wallet = nil
}

// Load obtains the payment record and probes which rails the client can use.
func (c *Controller) Load(ctx context.Context, src Source) error {
	c.mu.Lock()
	if c.state != models.FlowLoadingPayment || c.record != nil || c.busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: load from %s", ErrWrongState, c.state)
	}
	c.source = src
	c.busy = true
	c.mu.Unlock()

	return c.load(ctx, src)
}

func (c *Controller) load(ctx context.Context, src Source) error {
	record, err := c.resolveRecord(ctx, src)
	if err != nil {
		log.Printf("[Session: %s] Failed to load payment: %v", c.id, err)
		c.mu.Lock()
		c.busy = false
		c.fail(ctx, models.FlowError, MessageGeneric, err)
		c.mu.Unlock()
		return err
	}

	// Probed on every load; results from an earlier load are never reused.
	caps := capability.NewProber(c.env.PaymentRequest, c.env.Wallet).Probe(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.record = record
	c.caps = caps

	next := models.FlowForm
	if caps.Any() {
		next = models.FlowMethodSelect
	}
	return c.setState(next)
}

func (c *Controller) resolveRecord(ctx context.Context, src Source) (*models.PaymentRecord, error) {
	if src.Draft != nil {
		record := src.Draft.Clone()
		record.ID = uuid.NewString()
		record.New = true
		record.State = models.PaymentStateOpen
		if record.Environment == "" {
			record.Environment = models.EnvironmentTest
		}
		return record, nil
	}
	if src.PaymentID == "" {
		return nil, ErrNoPayment
	}

	record, err := c.backend.GetPayment(ctx, src.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %s: %w", src.PaymentID, err)
	}
	if record.State != models.PaymentStateOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrPaymentNotOpen, record.ID, record.State)
	}
	return record, nil
}

// SelectMethod moves to the entry state of a rail. The form is always available.
func (c *Controller) SelectMethod(ctx context.Context, method rails.Method) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	var to models.FlowState
	switch method {
	case rails.MethodForm:
		to = models.FlowForm
	case rails.MethodPaymentRequest:
		if !c.caps.PaymentRequest {
			return fmt.Errorf("%w: %s", ErrMethodUnavailable, method)
		}
		to = models.FlowNativeRequest
	case rails.MethodApplePay:
		if !c.caps.Wallet {
			return fmt.Errorf("%w: %s", ErrMethodUnavailable, method)
		}
		to = models.FlowWallet
	default:
		return fmt.Errorf("%w: %q", rails.ErrUnsupportedMethod, method)
	}

	if c.state == to {
		return nil
	}
	if c.state == models.FlowWallet {
		c.abortWallet(ctx)
	}
	return c.setState(to)
}

// ReturnToMethods goes back to rail selection from a rail entry state.
func (c *Controller) ReturnToMethods(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if !c.caps.Any() {
		return fmt.Errorf("%w: no automated rails", ErrMethodUnavailable)
	}
	if c.state == models.FlowWallet {
		c.abortWallet(ctx)
	}
	return c.setState(models.FlowMethodSelect)
}

// UpdateField feeds one manual form field through the card formatter.
func (c *Controller) UpdateField(field card.Field, raw string) (card.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != models.FlowForm {
		return card.Result{}, fmt.Errorf("%w: form is not open in %s", ErrWrongState, c.state)
	}
	return c.form.Update(field, raw)
}

// SubmitForm validates the manual form and submits it. A *card.ValidationError is
// returned, with no state change, when a required field is invalid.
func (c *Controller) SubmitForm(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != models.FlowForm {
		c.mu.Unlock()
		return fmt.Errorf("%w: form is not open in %s", ErrWrongState, c.state)
	}

	opts := paymentOptions(c.record)
	if err := c.form.Validate(opts); err != nil {
		c.mu.Unlock()
		return err
	}

	var fallbackPhone string
	if c.record.Customer != nil {
		fallbackPhone = c.record.Customer.Phone
	}
	return c.submitLocked(ctx, rails.FromForm(c.form.PaymentResponse(opts, fallbackPhone)))
}

// Submit sends one rail result to the backend. The result's rail must match the
// current entry state and no other attempt may be outstanding.
func (c *Controller) Submit(ctx context.Context, result rails.Result) error {
	c.mu.Lock()
	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return err
	}
	return c.submitLocked(ctx, result)
}

// submitLocked is entered with c.mu held and releases it.
func (c *Controller) submitLocked(ctx context.Context, result rails.Result) error {
	want, ok := railStates[result.Method]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", rails.ErrUnsupportedMethod, result.Method)
	}
	if c.state != want {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s result in %s", ErrWrongState, result.Method, state)
	}

	payload, err := rails.Normalize(result, c.accepts)
	if err != nil {
		log.Printf("[Session: %s] Rejecting %s result: %v", c.id, result.Method, err)
		c.fail(ctx, models.FlowError, MessageGeneric, err)
		c.mu.Unlock()
		if cerr := result.Complete(ctx, rails.StatusFail); cerr != nil {
			log.Printf("[Session: %s] Failed to complete rejected result: %v", c.id, cerr)
		}
		c.observer.ObserveSubmission(string(result.Method), "rejected")
		return nil
	}

	if c.record.New {
		payload.Payment = c.record.Clone()
	}
	c.method = result.Method
	c.message = ""
	c.reportID = ""
	id := c.record.ID
	fallbackEmail := c.record.CustomerEmail()
	if err := c.setState(models.FlowSubmitting); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.attempt(ctx, result, id, payload, fallbackEmail)
	return nil
}

var railStates = map[rails.Method]models.FlowState{
	rails.MethodForm:           models.FlowForm,
	rails.MethodPaymentRequest: models.FlowNativeRequest,
	rails.MethodApplePay:       models.FlowWallet,
}

// attempt posts the payload once and applies the reply. The flow is SUBMITTING
// for the whole call, so nothing else can change the record meanwhile.
func (c *Controller) attempt(ctx context.Context, result rails.Result, paymentID string, payload *models.AttemptPayload, fallbackEmail string) {
	ctx, span := c.tracer.Start(ctx, "checkout.attempt", trace.WithAttributes(
		attribute.String("checkout.session_id", c.id),
		attribute.String("checkout.method", string(result.Method)),
		attribute.String("payment.id", paymentID),
	))
	defer span.End()

	email := payload.Email
	if email == "" {
		email = fallbackEmail
	}

	reply, err := c.backend.SubmitWorldpay(ctx, paymentID, payload)

	var (
		status    rails.Status
		next      models.FlowState
		message   string
		challenge *models.ChallengeContext
		cause     error
	)
	switch {
	case err != nil:
		log.Printf("[Session: %s] Submission for payment %s failed: %v", c.id, paymentID, err)
		span.RecordError(err)
		status, next, message, cause = rails.StatusFail, models.FlowFailed, MessagePaymentFailed, err
	case reply.State == models.ReplySuccess:
		status, next = rails.StatusSuccess, models.FlowSuccess
	case reply.State == models.ReplyThreeDS:
		status, next = rails.StatusSuccess, models.FlowChallengeThreeDS
		challenge = &models.ChallengeContext{
			Kind:      models.ChallengeThreeDS,
			FrameURL:  reply.Frame,
			PaymentID: paymentID,
			Email:     email,
		}
	case reply.State == models.ReplyExistingAccount:
		status, next = rails.StatusSuccess, models.FlowChallengeAccount
		challenge = &models.ChallengeContext{
			Kind:      models.ChallengeExistingAccount,
			FrameURL:  reply.Frame,
			PaymentID: paymentID,
			Email:     email,
			Payload:   payload,
		}
	case reply.State == models.ReplyFailed:
		status, next, message = rails.StatusFail, models.FlowFailed, MessagePaymentFailed
	default:
		log.Printf("[Session: %s] Unrecognised backend state %q for payment %s", c.id, reply.State, paymentID)
		status, next, message = rails.StatusFail, models.FlowError, MessageGeneric
		cause = fmt.Errorf("unrecognised backend state %q", reply.State)
	}

	if cerr := result.Complete(ctx, status); cerr != nil {
		log.Printf("[Session: %s] Rail completion failed: %v", c.id, cerr)
		next, message, challenge, cause = models.FlowError, MessageGeneric, nil, cerr
	}

	c.observer.ObserveSubmission(string(result.Method), string(next))
	span.SetAttributes(attribute.String("checkout.outcome", string(next)))
	if next == models.FlowError || next == models.FlowFailed {
		span.SetStatus(codes.Error, string(next))
	}

	c.mu.Lock()
	if next == models.FlowFailed || next == models.FlowError {
		c.fail(ctx, next, message, cause)
		c.mu.Unlock()
		return
	}
	c.challenge = challenge
	if next == models.FlowSuccess {
		c.email = email
	}
	if err := c.setState(next); err != nil {
		log.Printf("[Session: %s] %v", c.id, err)
	}
	c.mu.Unlock()

	if next == models.FlowSuccess {
		c.complete(paymentID, email)
	}
}

func (c *Controller) complete(paymentID, email string) {
	log.Printf("[Session: %s] Payment %s complete", c.id, paymentID)
	if c.onComplete != nil {
		c.onComplete(paymentID, email)
	}
}

// Restart clears everything transient after a failure and loads the payment again.
// A draft is stamped with a new id.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.state.IsTerminal() || c.state == models.FlowSuccess {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: restart from %s", ErrWrongState, state)
	}

	c.closePopup()
	c.abortWallet(ctx)
	c.challenge = nil
	c.message = ""
	c.reportID = ""
	c.email = ""
	c.method = ""
	c.caps = capability.Capabilities{}
	c.record = nil
	c.form.Reset()
	if err := c.setState(models.FlowLoadingPayment); err != nil {
		c.mu.Unlock()
		return err
	}
	c.busy = true
	src := c.source
	c.mu.Unlock()

	return c.load(ctx, src)
}

// PaymentRequestDetails is the PaymentRequest details for the loaded record.
func (c *Controller) PaymentRequestDetails() (types.PaymentDetails, types.PaymentOptions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return types.PaymentDetails{}, types.PaymentOptions{}, fmt.Errorf("%w: payment not loaded", ErrWrongState)
	}
	return paymentDetails(c.record), paymentOptions(c.record), nil
}

// ApplePayRequest is the wallet payment request for the loaded record.
func (c *Controller) ApplePayRequest() (types.ApplePayPaymentRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return types.ApplePayPaymentRequest{}, fmt.Errorf("%w: payment not loaded", ErrWrongState)
	}
	return applePayRequest(c.record, c.merchantName), nil
}
