package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"worldpay-checkout/middleware"
	"worldpay-checkout/models"
	"worldpay-checkout/queue"
	"worldpay-checkout/services/admin"
	"worldpay-checkout/services/auth"
	"worldpay-checkout/services/backend"
	"worldpay-checkout/utils"
)

// ReportRetrier requeues an error report whose deliveries were exhausted.
type ReportRetrier interface {
	RetryJob(ctx context.Context, jobID string) error
}

type AdminHandler struct {
	sessions   *Registry[*admin.Session]
	newBackend func() AdminBackend
	tokens     *auth.JWTService
	apiRoot    string
	reports    ReportRetrier
}

func NewAdminHandler(registry *Registry[*admin.Session], newBackend func() AdminBackend, tokens *auth.JWTService, apiRoot string, reports ReportRetrier) *AdminHandler {
	return &AdminHandler{
		sessions:   registry,
		newBackend: newBackend,
		tokens:     tokens,
		apiRoot:    apiRoot,
		reports:    reports,
	}
}

type whoAmIResponse struct {
	admin.State
	LoginURL    string `json:"login_url"`
	LogoutURL   string `json:"logout_url"`
	BridgeToken string `json:"bridge_token"`
}

// WhoAmI refreshes the backend login and returns the admin state.
func (h *AdminHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	if _, err := session.Refresh(r.Context()); err != nil {
		log.Printf("[Admin: %s] %v", session.ID(), err)
		utils.SendErrorResponse(w, http.StatusBadGateway, "Something went wrong")
		return
	}

	token, err := h.tokens.GenerateToken(session.ID(), auth.ScopeAdmin)
	if err != nil {
		log.Printf("[Admin: %s] Error generating bridge token: %v", session.ID(), err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data: whoAmIResponse{
			State:       session.State(),
			LoginURL:    session.LoginURL(),
			LogoutURL:   session.LogoutURL(),
			BridgeToken: token,
		},
	})
}

// OpenPopup records the login (or, with ?logout=true, logout) popup.
func (h *AdminHandler) OpenPopup(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	logout, _ := strconv.ParseBool(r.URL.Query().Get("logout"))
	url := session.OpenPopup(logout)
	utils.SendSuccessResponse(w, models.APIResponse{
		Status: "success",
		Data:   map[string]string{"url": url},
	})
}

func (h *AdminHandler) State(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: session.State()})
}

func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := session.Orders(r.Context(), offset, limit)
	if err != nil {
		sendAdminError(w, session.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: page})
}

func (h *AdminHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	order, err := session.Order(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		sendAdminError(w, session.ID(), err)
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: order})
}

// RetryReport puts a parked error report back on the delivery queue.
func (h *AdminHandler) RetryReport(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	if err := session.RequireLogin(); err != nil {
		sendAdminError(w, session.ID(), err)
		return
	}
	if h.reports == nil {
		utils.SendErrorResponse(w, http.StatusServiceUnavailable, "Error reports are not queued")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.reports.RetryJob(r.Context(), id); err != nil {
		sendAdminError(w, session.ID(), err)
		return
	}
	log.Printf("[Admin: %s] Requeued error report %s", session.ID(), id)
	utils.SendJSON(w, http.StatusAccepted, models.APIResponse{
		Status:  "success",
		Message: "Report requeued",
		Data:    map[string]string{"id": id},
	})
}

// session returns the caller's admin session, creating it on first use.
func (h *AdminHandler) session(r *http.Request) *admin.Session {
	id := middleware.SessionIDFromContext(r.Context())
	if session, ok := h.sessions.Get(id); ok {
		return session
	}
	be := h.newBackend()
	session := admin.NewSession(id, be, h.apiRoot)
	session.RelayThrough(func(target string) string {
		return be.RelayURL(adminRelayPrefix, target)
	})
	h.sessions.Add(session, be)
	return session
}

// Relay serves the backend login and logout pages through the admin session's jar.
func (h *AdminHandler) Relay(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	rel, ok := h.sessions.Relay(session.ID())
	if !ok {
		utils.SendErrorResponse(w, http.StatusNotFound, "Session not found")
		return
	}
	relay(w, r, rel, adminRelayPrefix, session.ID())
}

func sendAdminError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, admin.ErrNotLoggedIn):
		utils.SendErrorResponse(w, http.StatusUnauthorized, "Not logged in")
	case errors.Is(err, backend.ErrNotFound):
		utils.SendErrorResponse(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, queue.ErrJobNotFound):
		utils.SendErrorResponse(w, http.StatusNotFound, "Report not found")
	default:
		log.Printf("[Admin: %s] %v", sessionID, err)
		utils.SendErrorResponse(w, http.StatusBadGateway, "Something went wrong")
	}
}
