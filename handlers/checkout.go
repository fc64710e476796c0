package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"worldpay-checkout/middleware"
	"worldpay-checkout/models"
	"worldpay-checkout/services/auth"
	"worldpay-checkout/services/capability"
	"worldpay-checkout/services/card"
	"worldpay-checkout/services/checkout"
	"worldpay-checkout/services/rails"
	"worldpay-checkout/types"
	"worldpay-checkout/utils"
)

const maxBodyBytes = 1 << 20

// CheckoutConfig carries the per-host settings every controller is built with.
type CheckoutConfig struct {
	MerchantName string
	Region       string
	Observer     checkout.Observer
	Reporter     checkout.Reporter
}

type CheckoutHandler struct {
	sessions   *Registry[*checkout.Controller]
	newBackend func() CheckoutBackend
	store      sessions.Store
	tokens     *auth.JWTService
	cfg        CheckoutConfig
}

func NewCheckoutHandler(registry *Registry[*checkout.Controller], newBackend func() CheckoutBackend, store sessions.Store, tokens *auth.JWTService, cfg CheckoutConfig) *CheckoutHandler {
	return &CheckoutHandler{
		sessions:   registry,
		newBackend: newBackend,
		store:      store,
		tokens:     tokens,
		cfg:        cfg,
	}
}

type createSessionRequest struct {
	PaymentID    string                  `json:"payment_id"`
	Payment      *models.PaymentRecord   `json:"payment"`
	Accepts      string                  `json:"accepts"`
	Capabilities capability.Capabilities `json:"capabilities"`
}

type sessionResponse struct {
	SessionID   string            `json:"session_id"`
	BridgeToken string            `json:"bridge_token"`
	Snapshot    checkout.Snapshot `json:"snapshot"`
}

// CreateSession starts a checkout for a payment id or a draft record and binds
// it to the caller's cookie.
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PaymentID == "" && req.Payment == nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "payment_id or payment is required")
		return
	}

	id := uuid.New().String()
	be := h.newBackend()
	relayPath := checkoutRelayPath(id)
	controller := checkout.NewController(id, checkout.Options{
		Backend:      be,
		Environment:  checkout.RemoteEnvironment(req.Capabilities),
		Accepts:      req.Accepts,
		MerchantName: h.cfg.MerchantName,
		Region:       h.cfg.Region,
		Observer:     h.cfg.Observer,
		Reporter:     h.cfg.Reporter,
		LoginURL: func(frame string) string {
			return be.RelayURL(relayPath, frame)
		},
	})

	token, err := h.tokens.GenerateToken(id, auth.ScopeCheckout)
	if err != nil {
		log.Printf("[Session: %s] Error generating bridge token: %v", id, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, checkout.MessageGeneric)
		return
	}
	if err := middleware.BindCheckout(h.store, w, r, id); err != nil {
		log.Printf("[Session: %s] Error saving session cookie: %v", id, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, checkout.MessageGeneric)
		return
	}
	h.sessions.Add(controller, be)

	// A failed load leaves the controller in ERROR, which the client renders.
	if err := controller.Load(r.Context(), checkout.Source{PaymentID: req.PaymentID, Draft: req.Payment}); err != nil {
		log.Printf("[Session: %s] Load failed: %v", id, err)
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Checkout session created",
		Data: sessionResponse{
			SessionID:   id,
			BridgeToken: token,
			Snapshot:    controller.Snapshot(),
		},
	})
}

func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	sendSnapshot(w, controller)
}

type fieldRequest struct {
	Value string `json:"value"`
}

type fieldResponse struct {
	Field    checkout.FieldView `json:"field"`
	Snapshot checkout.Snapshot  `json:"snapshot"`
}

func (h *CheckoutHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := controller.UpdateField(card.Field(mux.Vars(r)["field"]), req.Value)
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data: fieldResponse{
			Field:    checkout.FieldView{Display: result.Display, Valid: result.Valid, Reason: result.Reason},
			Snapshot: controller.Snapshot(),
		},
	})
}

type methodRequest struct {
	Method rails.Method `json:"method"`
}

// SelectMethod enters a rail; an empty method returns to rail selection.
func (h *CheckoutHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req methodRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var err error
	if req.Method == "" {
		err = controller.ReturnToMethods(r.Context())
	} else {
		err = controller.SelectMethod(r.Context(), req.Method)
	}
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	sendSnapshot(w, controller)
}

type paymentRequestResponse struct {
	Methods []types.PaymentMethodData `json:"methods"`
	Details types.PaymentDetails      `json:"details"`
	Options types.PaymentOptions      `json:"options"`
}

func (h *CheckoutHandler) PaymentRequest(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	details, opts, err := controller.PaymentRequestDetails()
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data: paymentRequestResponse{
			Methods: []types.PaymentMethodData{types.BasicCardMethod()},
			Details: details,
			Options: opts,
		},
	})
}

func (h *CheckoutHandler) ApplePayRequest(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	req, err := controller.ApplePayRequest()
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: req})
}

// BeginApplePay is called when the client creates its wallet session.
func (h *CheckoutHandler) BeginApplePay(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	req, err := controller.BeginWallet(r.Context())
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: req})
}

type validateMerchantRequest struct {
	ValidationURL string `json:"validation_url"`
}

func (h *CheckoutHandler) ValidateMerchant(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validateMerchantRequest
	if err := decodeBody(w, r, &req); err != nil || req.ValidationURL == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "validation_url is required")
		return
	}

	verification, err := controller.VerifyMerchant(r.Context(), req.ValidationURL)
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: verification})
}

func (h *CheckoutHandler) CancelApplePay(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := controller.CancelWallet(); err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	sendSnapshot(w, controller)
}

type submitRequest struct {
	Method   rails.Method           `json:"method"`
	Response *types.PaymentResponse `json:"response"`
	Payment  *types.ApplePayPayment `json:"payment"`
}

type submitResponse struct {
	Complete rails.Status      `json:"complete,omitempty"`
	Snapshot checkout.Snapshot `json:"snapshot"`
}

// Submit takes a result from a rail the client ran itself. The status the
// client must pass to complete() comes back in the response.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	recorder := &rails.Recorder{}
	var result rails.Result
	switch {
	case req.Method == rails.MethodPaymentRequest && req.Response != nil:
		result = rails.FromPaymentRequest(*req.Response, recorder)
	case req.Method == rails.MethodApplePay && req.Payment != nil:
		result = rails.FromApplePay(*req.Payment, recorder)
	default:
		utils.SendErrorResponse(w, http.StatusBadRequest, "A payment_request response or apple_pay payment is required")
		return
	}

	if err := controller.Submit(r.Context(), result); err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}

	status, _ := recorder.Status()
	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data:   submitResponse{Complete: status, Snapshot: controller.Snapshot()},
	})
}

func (h *CheckoutHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := controller.SubmitForm(r.Context()); err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	sendSnapshot(w, controller)
}

func (h *CheckoutHandler) OpenLoginPopup(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	url, err := controller.OpenLoginPopup(r.Context())
	if err != nil {
		sendControllerError(w, controller.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data:   checkout.PopupView{URL: url, Name: checkout.LoginPopupName},
	})
}

// Relay serves the existing-account login pages through the session's backend jar.
func (h *CheckoutHandler) Relay(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionIDFromContext(r.Context())
	rel, ok := h.sessions.Relay(id)
	if !ok {
		utils.SendErrorResponse(w, http.StatusNotFound, "Session not found")
		return
	}
	relay(w, r, rel, checkoutRelayPath(id), id)
}

func (h *CheckoutHandler) Restart(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := controller.Restart(r.Context()); err != nil && !isLoadFailure(controller) {
		sendControllerError(w, controller.ID(), err)
		return
	}
	sendSnapshot(w, controller)
}

func (h *CheckoutHandler) controller(w http.ResponseWriter, r *http.Request) (*checkout.Controller, bool) {
	id := middleware.SessionIDFromContext(r.Context())
	if id == "" {
		id = mux.Vars(r)["id"]
	}
	controller, ok := h.sessions.Get(id)
	if !ok {
		utils.SendErrorResponse(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return controller, true
}

// isLoadFailure reports whether a restart error was a load failure, which the
// controller already turned into a rendered ERROR state.
func isLoadFailure(c *checkout.Controller) bool {
	return c.State() == models.FlowError
}

func sendSnapshot(w http.ResponseWriter, c *checkout.Controller) {
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: c.Snapshot()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// sendControllerError maps controller errors to status codes. Only fixed
// messages reach the client.
func sendControllerError(w http.ResponseWriter, sessionID string, err error) {
	var validation *card.ValidationError
	switch {
	case errors.As(err, &validation):
		utils.SendJSON(w, http.StatusUnprocessableEntity, models.APIResponse{
			Status:  "error",
			Message: validation.Reason,
			Data:    map[string]string{"field": string(validation.Field)},
		})
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		utils.SendErrorResponse(w, http.StatusConflict, "A payment is already being processed")
	case errors.Is(err, checkout.ErrBusy):
		utils.SendErrorResponse(w, http.StatusConflict, "Checkout is busy, try again")
	case errors.Is(err, checkout.ErrWrongState), errors.Is(err, checkout.ErrInvalidTransition):
		utils.SendErrorResponse(w, http.StatusConflict, "Not allowed at this step")
	case errors.Is(err, checkout.ErrMethodUnavailable), errors.Is(err, rails.ErrUnsupportedMethod):
		utils.SendErrorResponse(w, http.StatusBadRequest, "Payment method unavailable")
	case errors.Is(err, card.ErrUnknownField):
		utils.SendErrorResponse(w, http.StatusBadRequest, "Unknown field")
	case errors.Is(err, checkout.ErrMerchantVerification):
		utils.SendErrorResponse(w, http.StatusBadGateway, checkout.MessagePaymentFailed)
	default:
		log.Printf("[Session: %s] Unhandled controller error: %v", sessionID, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, checkout.MessageGeneric)
	}
}
