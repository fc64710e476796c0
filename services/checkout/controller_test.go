package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldpay-checkout/models"
	"worldpay-checkout/services/bridge"
	"worldpay-checkout/services/capability"
	"worldpay-checkout/services/card"
	"worldpay-checkout/services/rails"
	"worldpay-checkout/types"
)

var testNow = func() time.Time { return time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC) }

type fakeBackend struct {
	mu       sync.Mutex
	records  map[string]*models.PaymentRecord
	replies  []*models.SubmissionReply
	submitFn func() (*models.SubmissionReply, error)
	verifyFn func(string) (*models.MerchantVerificationResponse, error)
	submits  []submitCall
	block    chan struct{}
	entered  chan struct{}
}

type submitCall struct {
	id      string
	payload *models.AttemptPayload
}

func newFakeBackend(replies ...*models.SubmissionReply) *fakeBackend {
	return &fakeBackend{records: make(map[string]*models.PaymentRecord), replies: replies}
}

func (f *fakeBackend) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, errors.New("backend resource not found")
	}
	return r.Clone(), nil
}

func (f *fakeBackend) SubmitWorldpay(ctx context.Context, id string, payload *models.AttemptPayload) (*models.SubmissionReply, error) {
	f.mu.Lock()
	f.submits = append(f.submits, submitCall{id, payload})
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn()
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeBackend) VerifyAppleMerchant(ctx context.Context, url string) (*models.MerchantVerificationResponse, error) {
	if f.verifyFn != nil {
		return f.verifyFn(url)
	}
	return &models.MerchantVerificationResponse{Verification: map[string]interface{}{"merchantSessionIdentifier": "abc"}}, nil
}

func (f *fakeBackend) calls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.submits...)
}

type fakePaymentRequest struct {
	available bool
	probes    int
	resp      types.PaymentResponse
	err       error
	completer *rails.Recorder
	mu        sync.Mutex
}

func (f *fakePaymentRequest) CanMakePayment(ctx context.Context, methods []types.PaymentMethodData, details types.PaymentDetails) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.available, nil
}

func (f *fakePaymentRequest) Show(ctx context.Context, methods []types.PaymentMethodData, details types.PaymentDetails, opts types.PaymentOptions) (types.PaymentResponse, rails.Completer, error) {
	if f.err != nil {
		return types.PaymentResponse{}, nil, f.err
	}
	f.completer = &rails.Recorder{}
	return f.resp, f.completer, nil
}

type fakeWallet struct {
	available bool
	session   *fakeWalletSession
	began     []types.ApplePayPaymentRequest
}

func (f *fakeWallet) CanMakePayments(ctx context.Context) (bool, error) {
	return f.available, nil
}

func (f *fakeWallet) Begin(ctx context.Context, req types.ApplePayPaymentRequest) (WalletSession, error) {
	f.began = append(f.began, req)
	f.session = &fakeWalletSession{}
	return f.session, nil
}

type blockingWallet struct {
	fakeWallet
	entered chan struct{}
	release chan struct{}
}

func (b *blockingWallet) Begin(ctx context.Context, req types.ApplePayPaymentRequest) (WalletSession, error) {
	close(b.entered)
	<-b.release
	return b.fakeWallet.Begin(ctx, req)
}

type fakeWalletSession struct {
	validated interface{}
	aborted   bool
}

func (s *fakeWalletSession) CompleteMerchantValidation(ctx context.Context, verification interface{}) error {
	s.validated = verification
	return nil
}

func (s *fakeWalletSession) Abort(ctx context.Context) error {
	s.aborted = true
	return nil
}

type fakePopups struct {
	opened []*fakePopup
}

type fakePopup struct {
	url    string
	closed bool
}

func (p *fakePopup) Close() error {
	p.closed = true
	return nil
}

func (f *fakePopups) Open(ctx context.Context, url, name string) (Popup, error) {
	p := &fakePopup{url: url}
	f.opened = append(f.opened, p)
	return p, nil
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) Report(ctx context.Context, err error, tags map[string]string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	return "evt-1"
}

type completion struct {
	paymentID, email string
}

type harness struct {
	ctrl      *Controller
	backend   *fakeBackend
	popups    *fakePopups
	reporter  *fakeReporter
	completed []completion
}

func newHarness(t *testing.T, env Environment, backend *fakeBackend) *harness {
	t.Helper()
	h := &harness{backend: backend, popups: &fakePopups{}, reporter: &fakeReporter{}}
	if env.Popups == nil {
		env.Popups = h.popups
	}
	h.ctrl = NewController("sess-1", Options{
		Backend:      backend,
		Environment:  env,
		Accepts:      "text/html",
		MerchantName: "We Will Fix Your PC",
		Now:          testNow,
		Reporter:     h.reporter,
		OnComplete: func(paymentID, email string) {
			h.completed = append(h.completed, completion{paymentID, email})
		},
	})
	return h
}

func draft() *models.PaymentRecord {
	return &models.PaymentRecord{
		ID: "client-chosen",
		Customer: &models.Customer{
			Email: "customer@example.com",
			Phone: "+442920000000",
		},
		Items: []models.PaymentItem{
			{Title: "Screen repair", Price: 49.99, Quantity: 1},
			{Title: "Cable", Price: 2.50, Quantity: 2},
		},
	}
}

func fillForm(t *testing.T, c *Controller) {
	t.Helper()
	for field, raw := range map[card.Field]string{
		card.FieldName:   "Jo Q Bloggs",
		card.FieldNumber: "4111 1111 1111 1111",
		card.FieldExpiry: "12/30",
		card.FieldCVC:    "123",
	} {
		_, err := c.UpdateField(field, raw)
		require.NoError(t, err)
	}
}

func loadedOnForm(t *testing.T, replies ...*models.SubmissionReply) *harness {
	t.Helper()
	h := newHarness(t, Environment{}, newFakeBackend(replies...))
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
	require.Equal(t, models.FlowForm, h.ctrl.State())
	fillForm(t, h.ctrl)
	return h
}

func TestLoad_StampsDraft(t *testing.T) {
	h := loadedOnForm(t, &models.SubmissionReply{State: models.ReplySuccess})

	snap := h.ctrl.Snapshot()
	require.NotNil(t, snap.Payment)
	assert.NotEqual(t, "client-chosen", snap.Payment.ID)
	assert.NotEmpty(t, snap.Payment.ID)
	assert.True(t, snap.Payment.New)
	assert.Equal(t, models.EnvironmentTest, snap.Payment.Environment)
	assert.Equal(t, "54.99", snap.Total)

	require.NoError(t, h.ctrl.SubmitForm(context.Background()))

	calls := h.backend.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, snap.Payment.ID, calls[0].id)
	require.NotNil(t, calls[0].payload.Payment)
	assert.Equal(t, snap.Payment.ID, calls[0].payload.Payment.ID)
	assert.Equal(t, models.EnvironmentTest, calls[0].payload.Payment.Environment)
	assert.Equal(t, "Jo Q", calls[0].payload.FirstName)
	assert.Equal(t, "Bloggs", calls[0].payload.LastName)
	assert.Equal(t, "text/html", calls[0].payload.Accepts)
}

func TestLoad_KeepsDraftEnvironment(t *testing.T) {
	d := draft()
	d.Environment = models.EnvironmentLive
	h := newHarness(t, Environment{}, newFakeBackend())
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: d}))
	assert.Equal(t, models.EnvironmentLive, h.ctrl.Snapshot().Payment.Environment)
}

func TestLoad_Fetched(t *testing.T) {
	backend := newFakeBackend()
	backend.records["open"] = &models.PaymentRecord{ID: "open", State: models.PaymentStateOpen, Environment: models.EnvironmentLive}
	backend.records["paid"] = &models.PaymentRecord{ID: "paid", State: models.PaymentStatePaid}

	tests := []struct {
		name    string
		id      string
		want    models.FlowState
		wantErr bool
	}{
		{"open record", "open", models.FlowForm, false},
		{"paid record", "paid", models.FlowError, true},
		{"missing record", "missing", models.FlowError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Environment{}, backend)
			err := h.ctrl.Load(context.Background(), Source{PaymentID: tt.id})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, MessageGeneric, h.ctrl.Snapshot().Message)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, h.ctrl.State())
		})
	}

	h := newHarness(t, Environment{}, backend)
	assert.ErrorIs(t, h.ctrl.Load(context.Background(), Source{}), ErrNoPayment)
}

func TestLoad_MethodSelectWhenRailAvailable(t *testing.T) {
	pr := &fakePaymentRequest{available: true}
	h := newHarness(t, Environment{PaymentRequest: pr}, newFakeBackend())
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))

	assert.Equal(t, models.FlowMethodSelect, h.ctrl.State())
	assert.Equal(t, capability.Capabilities{PaymentRequest: true}, h.ctrl.Snapshot().Capabilities)

	require.NoError(t, h.ctrl.SelectMethod(context.Background(), rails.MethodForm))
	assert.Equal(t, models.FlowForm, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.SelectMethod(context.Background(), rails.MethodApplePay), ErrMethodUnavailable)
}

func TestSubmit_Success(t *testing.T) {
	h := loadedOnForm(t, &models.SubmissionReply{State: models.ReplySuccess})
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.FlowSuccess, snap.State)
	assert.True(t, snap.Terminal)
	assert.Equal(t, "customer@example.com", snap.Email)
	require.Len(t, h.completed, 1)
	assert.Equal(t, completion{snap.Payment.ID, "customer@example.com"}, h.completed[0])

	assert.ErrorIs(t, h.ctrl.Restart(context.Background()), ErrWrongState)
}

func TestSubmitForm_Invalid(t *testing.T) {
	h := newHarness(t, Environment{}, newFakeBackend())
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
	_, err := h.ctrl.UpdateField(card.FieldNumber, "4111 1111 1111 1112")
	require.NoError(t, err)

	err = h.ctrl.SubmitForm(context.Background())
	var verr *card.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, card.FieldName, verr.Field)
	assert.Equal(t, models.FlowForm, h.ctrl.State())
	assert.Empty(t, h.backend.calls())
}

func TestSubmit_FailedReplyIsGeneric(t *testing.T) {
	h := loadedOnForm(t, &models.SubmissionReply{
		State:        models.ReplyFailed,
		Verification: map[string]interface{}{"lastEvent": "REFUSED", "iso8583ReturnCode": "05 DO NOT HONOUR"},
	})
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.FlowFailed, snap.State)
	assert.Equal(t, MessagePaymentFailed, snap.Message)
	assert.Empty(t, h.completed)
}

func TestSubmit_TransportFailure(t *testing.T) {
	h := loadedOnForm(t)
	h.backend.submitFn = func() (*models.SubmissionReply, error) {
		return nil, errors.New("dial tcp 10.0.0.1:443: connection refused")
	}
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.FlowFailed, snap.State)
	assert.Equal(t, MessagePaymentFailed, snap.Message)
	assert.Equal(t, "evt-1", snap.ReportID)
	assert.Len(t, h.reporter.errs, 1)
}

func TestSubmit_UnrecognisedState(t *testing.T) {
	pr := &fakePaymentRequest{available: true, resp: types.PaymentResponse{
		MethodName: types.MethodBasicCard,
		Details: types.CardDetails{
			CardNumber: "4111111111111111", CardholderName: "Jo Bloggs",
			CardSecurityCode: "123", ExpiryMonth: "12", ExpiryYear: "2030",
		},
	}}
	h := newHarness(t, Environment{PaymentRequest: pr}, newFakeBackend(&models.SubmissionReply{State: "PENDING"}))
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
	require.NoError(t, h.ctrl.RequestPayment(context.Background()))

	assert.Equal(t, models.FlowError, h.ctrl.State())
	status, called := pr.completer.Status()
	assert.True(t, called)
	assert.Equal(t, rails.StatusFail, status)
}

func TestSubmit_SingleInFlight(t *testing.T) {
	h := loadedOnForm(t, &models.SubmissionReply{State: models.ReplySuccess})
	h.backend.block = make(chan struct{})
	h.backend.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SubmitForm(context.Background()) }()
	<-h.backend.entered

	assert.Equal(t, models.FlowSubmitting, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.SubmitForm(context.Background()), ErrSubmissionInFlight)
	assert.ErrorIs(t, h.ctrl.Submit(context.Background(), rails.FromForm(types.PaymentResponse{})), ErrSubmissionInFlight)

	close(h.backend.block)
	require.NoError(t, <-done)
	assert.Len(t, h.backend.calls(), 1)
	assert.Equal(t, models.FlowSuccess, h.ctrl.State())
}

func TestThreeDS(t *testing.T) {
	tests := []struct {
		name      string
		msg       func(paymentID string) bridge.Message
		want      models.FlowState
		completed bool
	}{
		{"approved", func(id string) bridge.Message { return bridge.ThreeDSMessage{PaymentID: id, Approved: true} }, models.FlowSuccess, true},
		{"declined", func(id string) bridge.Message { return bridge.ThreeDSMessage{PaymentID: id} }, models.FlowFailed, false},
		{"other payment", func(string) bridge.Message { return bridge.ThreeDSMessage{PaymentID: "someone-else", Approved: true} }, models.FlowError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := loadedOnForm(t, &models.SubmissionReply{State: models.ReplyThreeDS, Frame: "https://pay.example/3ds/"})
			require.NoError(t, h.ctrl.SubmitForm(context.Background()))

			snap := h.ctrl.Snapshot()
			require.Equal(t, models.FlowChallengeThreeDS, snap.State)
			require.NotNil(t, snap.Challenge)
			assert.Equal(t, "https://pay.example/3ds/", snap.Challenge.FrameURL)
			assert.Equal(t, "customer@example.com", snap.Challenge.Email)

			h.ctrl.Deliver(context.Background(), tt.msg(snap.Payment.ID))
			assert.Equal(t, tt.want, h.ctrl.State())
			assert.Equal(t, tt.completed, len(h.completed) == 1)
			assert.Nil(t, h.ctrl.Snapshot().Challenge)
		})
	}
}

func TestDeliver_IgnoresStrayMessages(t *testing.T) {
	h := loadedOnForm(t)

	h.ctrl.Deliver(context.Background(), bridge.ThreeDSMessage{PaymentID: "x", Approved: true})
	h.ctrl.Deliver(context.Background(), bridge.LoginMessage{Successful: true})

	assert.Equal(t, models.FlowForm, h.ctrl.State())
	assert.Empty(t, h.completed)
}

func TestExistingAccount_LoginReplaysPayload(t *testing.T) {
	h := loadedOnForm(t,
		&models.SubmissionReply{State: models.ReplyExistingAccount, Frame: "https://pay.example/login/"},
		&models.SubmissionReply{State: models.ReplySuccess},
	)
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))
	require.Equal(t, models.FlowChallengeAccount, h.ctrl.State())

	url, err := h.ctrl.OpenLoginPopup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/login/", url)
	_, err = h.ctrl.OpenLoginPopup(context.Background())
	require.NoError(t, err)
	require.Len(t, h.popups.opened, 2)
	assert.True(t, h.popups.opened[0].closed, "earlier popup must be closed before a new one opens")
	assert.NotNil(t, h.ctrl.Snapshot().Popup)

	h.ctrl.Deliver(context.Background(), bridge.LoginMessage{Successful: true})
	h.ctrl.Wait()

	assert.True(t, h.popups.opened[1].closed)
	assert.Equal(t, models.FlowSuccess, h.ctrl.State())

	calls := h.backend.calls()
	require.Len(t, calls, 2)
	assert.Same(t, calls[0].payload, calls[1].payload)
	require.Len(t, h.completed, 1)
}

func TestExistingAccount_PopupOpensMappedLoginURL(t *testing.T) {
	h := loadedOnForm(t, &models.SubmissionReply{State: models.ReplyExistingAccount, Frame: "https://pay.example/login/auth/"})
	h.ctrl.loginURL = func(frame string) string {
		return "/api/checkout/sessions/sess-1/backend/login/auth/"
	}
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))

	url, err := h.ctrl.OpenLoginPopup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/checkout/sessions/sess-1/backend/login/auth/", url)
	assert.Equal(t, url, h.popups.opened[0].url)
	assert.Equal(t, "https://pay.example/login/auth/", h.ctrl.Snapshot().Challenge.FrameURL)
}

func TestExistingAccount_LoginFailed(t *testing.T) {
	h := loadedOnForm(t, &models.SubmissionReply{State: models.ReplyExistingAccount, Frame: "https://pay.example/login/"})
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))
	_, err := h.ctrl.OpenLoginPopup(context.Background())
	require.NoError(t, err)

	h.ctrl.Deliver(context.Background(), bridge.LoginMessage{Successful: false})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.FlowFailed, snap.State)
	assert.Equal(t, MessageLoginFailed, snap.Message)
	assert.Nil(t, snap.Popup)
	assert.True(t, h.popups.opened[0].closed)
	assert.Len(t, h.backend.calls(), 1)
}

func TestRestart(t *testing.T) {
	pr := &fakePaymentRequest{available: false}
	h := newHarness(t, Environment{PaymentRequest: pr}, newFakeBackend(&models.SubmissionReply{State: models.ReplyFailed}))
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
	firstID := h.ctrl.Snapshot().Payment.ID
	fillForm(t, h.ctrl)
	require.NoError(t, h.ctrl.SubmitForm(context.Background()))
	require.Equal(t, models.FlowFailed, h.ctrl.State())
	assert.True(t, h.ctrl.Snapshot().Terminal)

	pr.mu.Lock()
	pr.available = true
	pr.mu.Unlock()
	require.NoError(t, h.ctrl.Restart(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.FlowMethodSelect, snap.State)
	assert.False(t, snap.Terminal)
	assert.True(t, snap.Capabilities.PaymentRequest)
	assert.Equal(t, 2, pr.probes)
	assert.NotEqual(t, firstID, snap.Payment.ID)
	assert.Empty(t, snap.Message)

	require.NoError(t, h.ctrl.SelectMethod(context.Background(), rails.MethodForm))
	assert.False(t, h.ctrl.Snapshot().Form[card.FieldNumber].Valid, "form is cleared on restart")
}

func TestRequestPayment_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.FlowState
	}{
		{"not supported", ErrNotSupported, models.FlowForm},
		{"aborted", ErrAborted, models.FlowMethodSelect},
		{"broken", errors.New("boom"), models.FlowError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := &fakePaymentRequest{available: true, err: tt.err}
			h := newHarness(t, Environment{PaymentRequest: pr}, newFakeBackend())
			require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
			require.NoError(t, h.ctrl.RequestPayment(context.Background()))
			assert.Equal(t, tt.want, h.ctrl.State())
			assert.Empty(t, h.backend.calls())
		})
	}
}

func TestRequestPayment_Success(t *testing.T) {
	pr := &fakePaymentRequest{available: true, resp: types.PaymentResponse{
		MethodName: types.MethodBasicCard,
		Details: types.CardDetails{
			CardNumber: "4111111111111111", CardholderName: "Jo Bloggs",
			CardSecurityCode: "123", ExpiryMonth: "12", ExpiryYear: "2030",
		},
		PayerEmail: "payer@example.com",
	}}
	h := newHarness(t, Environment{PaymentRequest: pr}, newFakeBackend(&models.SubmissionReply{State: models.ReplyThreeDS}))
	require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
	require.NoError(t, h.ctrl.RequestPayment(context.Background()))

	assert.Equal(t, models.FlowChallengeThreeDS, h.ctrl.State())
	status, _ := pr.completer.Status()
	assert.Equal(t, rails.StatusSuccess, status, "funds are held so the sheet is told success")
	assert.Equal(t, "payer@example.com", h.ctrl.Snapshot().Challenge.Email)
}

func TestWallet(t *testing.T) {
	token := json.RawMessage(`{"paymentData":{"version":"EC_v1"}}`)

	t.Run("authorised", func(t *testing.T) {
		wallet := &fakeWallet{available: true}
		h := newHarness(t, Environment{Wallet: wallet}, newFakeBackend(&models.SubmissionReply{State: models.ReplySuccess}))
		require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))

		req, err := h.ctrl.BeginWallet(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "We Will Fix Your PC", req.Total.Label)
		assert.Equal(t, "54.99", req.Total.Amount)
		assert.Equal(t, []string{"visa", "masterCard", "amex"}, req.SupportedNetworks)
		require.Len(t, req.LineItems, 2)
		assert.Equal(t, "5.00", req.LineItems[1].Amount)

		verification, err := h.ctrl.VerifyMerchant(context.Background(), "https://apple-pay-gateway.apple.com/paymentservices/startSession")
		require.NoError(t, err)
		assert.Equal(t, verification, wallet.session.validated)

		var rec rails.Recorder
		payment := types.ApplePayPayment{Token: token, BillingContact: types.ApplePayContact{
			GivenName: "Jo", FamilyName: "Bloggs", EmailAddress: "wallet@example.com",
		}}
		require.NoError(t, h.ctrl.Submit(context.Background(), rails.FromApplePay(payment, &rec)))

		assert.Equal(t, models.FlowSuccess, h.ctrl.State())
		status, _ := rec.Status()
		assert.Equal(t, rails.StatusSuccess, status)
		assert.Equal(t, "wallet@example.com", h.completed[0].email)
	})

	t.Run("merchant verification fails", func(t *testing.T) {
		wallet := &fakeWallet{available: true}
		backend := newFakeBackend()
		backend.verifyFn = func(string) (*models.MerchantVerificationResponse, error) {
			return nil, errors.New("unexpected backend status")
		}
		h := newHarness(t, Environment{Wallet: wallet}, backend)
		require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
		_, err := h.ctrl.BeginWallet(context.Background())
		require.NoError(t, err)

		_, err = h.ctrl.VerifyMerchant(context.Background(), "https://apple-pay-gateway.apple.com/paymentservices/startSession")
		assert.ErrorIs(t, err, ErrMerchantVerification)
		assert.True(t, wallet.session.aborted)
		assert.Equal(t, models.FlowFailed, h.ctrl.State())
	})

	t.Run("cancelled", func(t *testing.T) {
		h := newHarness(t, Environment{Wallet: &fakeWallet{available: true}}, newFakeBackend())
		require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
		require.NoError(t, h.ctrl.SelectMethod(context.Background(), rails.MethodApplePay))
		require.NoError(t, h.ctrl.CancelWallet())
		assert.Equal(t, models.FlowMethodSelect, h.ctrl.State())
	})

	t.Run("switching to the form aborts the session", func(t *testing.T) {
		wallet := &fakeWallet{available: true}
		h := newHarness(t, Environment{Wallet: wallet}, newFakeBackend())
		require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
		_, err := h.ctrl.BeginWallet(context.Background())
		require.NoError(t, err)

		require.NoError(t, h.ctrl.SelectMethod(context.Background(), rails.MethodForm))
		assert.Equal(t, models.FlowForm, h.ctrl.State())
		assert.True(t, wallet.session.aborted)
	})

	t.Run("unlocked while the sheet opens", func(t *testing.T) {
		wallet := &blockingWallet{fakeWallet: fakeWallet{available: true}, entered: make(chan struct{}), release: make(chan struct{})}
		h := newHarness(t, Environment{Wallet: wallet}, newFakeBackend())
		require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))

		done := make(chan error, 1)
		go func() {
			_, err := h.ctrl.BeginWallet(context.Background())
			done <- err
		}()
		<-wallet.entered

		assert.Equal(t, models.FlowWallet, h.ctrl.State())
		assert.ErrorIs(t, h.ctrl.CancelWallet(), ErrBusy)

		close(wallet.release)
		require.NoError(t, <-done)
		require.NoError(t, h.ctrl.CancelWallet())
		assert.Equal(t, models.FlowMethodSelect, h.ctrl.State())
	})

	t.Run("wrong rail", func(t *testing.T) {
		h := newHarness(t, Environment{Wallet: &fakeWallet{available: true}}, newFakeBackend())
		require.NoError(t, h.ctrl.Load(context.Background(), Source{Draft: draft()}))
		err := h.ctrl.Submit(context.Background(), rails.FromApplePay(types.ApplePayPayment{Token: token}, nil))
		assert.ErrorIs(t, err, ErrWrongState)
		assert.Empty(t, h.backend.calls())
	})
}

func TestCanTransition(t *testing.T) {
	for _, to := range []models.FlowState{models.FlowLoadingPayment, models.FlowMethodSelect, models.FlowFailed, models.FlowError} {
		assert.False(t, CanTransition(models.FlowSuccess, to), "SUCCESS is terminal")
	}
	assert.Equal(t, []models.FlowState{models.FlowLoadingPayment}, transitions[models.FlowError])
	assert.True(t, CanTransition(models.FlowChallengeAccount, models.FlowSubmitting))
	assert.False(t, CanTransition(models.FlowChallengeThreeDS, models.FlowSubmitting))
	assert.False(t, CanTransition(models.FlowForm, models.FlowSuccess))

	for from := range transitions {
		assert.True(t, from.IsValid(), "%s", from)
	}
}
