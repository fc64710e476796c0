package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"worldpay-checkout/middleware"
	"worldpay-checkout/services/auth"
)

type RouterConfig struct {
	Checkout *CheckoutHandler
	Bridge   *BridgeHandler
	Admin    *AdminHandler
	Health   *HealthHandler
	Store    sessions.Store
	Tokens   *auth.JWTService
	// SubmitLimiter guards the payment submission routes; nil disables it.
	SubmitLimiter *middleware.RateLimiter
	CORS          middleware.CORSConfig
	Metrics       http.Handler
}

func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.Logging)
	router.Use(middleware.SecurityHeadersMiddleware)

	// Preflights are answered by the CORS middleware.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", cfg.Health.Health).Methods("GET")
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods("GET")
	}

	api.HandleFunc("/checkout/sessions", cfg.Checkout.CreateSession).Methods("POST")

	session := api.PathPrefix("/checkout/sessions/{id}").Subrouter()
	session.Use(middleware.RequireCheckout(cfg.Store))
	session.HandleFunc("", cfg.Checkout.GetSession).Methods("GET")
	session.HandleFunc("/fields/{field}", cfg.Checkout.UpdateField).Methods("POST")
	session.HandleFunc("/method", cfg.Checkout.SelectMethod).Methods("POST")
	session.HandleFunc("/payment-request", cfg.Checkout.PaymentRequest).Methods("GET")
	session.HandleFunc("/apple-pay-request", cfg.Checkout.ApplePayRequest).Methods("GET")
	session.HandleFunc("/apple-pay/begin", cfg.Checkout.BeginApplePay).Methods("POST")
	session.HandleFunc("/apple-pay/validate", cfg.Checkout.ValidateMerchant).Methods("POST")
	session.HandleFunc("/apple-pay/cancel", cfg.Checkout.CancelApplePay).Methods("POST")
	session.HandleFunc("/login-popup", cfg.Checkout.OpenLoginPopup).Methods("POST")
	session.HandleFunc("/restart", cfg.Checkout.Restart).Methods("POST")
	session.PathPrefix(relaySegment).HandlerFunc(cfg.Checkout.Relay).Methods("GET", "POST")

	submit := session.NewRoute().Subrouter()
	if cfg.SubmitLimiter != nil {
		submit.Use(cfg.SubmitLimiter.Middleware)
	}
	submit.HandleFunc("/submit", cfg.Checkout.Submit).Methods("POST")
	submit.HandleFunc("/submit-form", cfg.Checkout.SubmitForm).Methods("POST")

	bridgeRouter := api.PathPrefix("/bridge").Subrouter()
	bridgeRouter.Use(middleware.BridgeAuth(cfg.Tokens))
	bridgeRouter.HandleFunc("/messages", cfg.Bridge.PostMessage).Methods("POST")

	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.AdminSession(cfg.Store))
	adminRouter.HandleFunc("/whoami", cfg.Admin.WhoAmI).Methods("GET")
	adminRouter.HandleFunc("/state", cfg.Admin.State).Methods("GET")
	adminRouter.HandleFunc("/popup", cfg.Admin.OpenPopup).Methods("POST")
	adminRouter.HandleFunc("/payments", cfg.Admin.ListPayments).Methods("GET")
	adminRouter.HandleFunc("/payments/{id}", cfg.Admin.GetPayment).Methods("GET")
	adminRouter.HandleFunc("/reports/{id}/retry", cfg.Admin.RetryReport).Methods("POST")
	adminRouter.PathPrefix(relaySegment).HandlerFunc(cfg.Admin.Relay).Methods("GET", "POST")

	return router
}
