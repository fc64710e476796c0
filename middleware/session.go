package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"worldpay-checkout/utils"
)

const (
	CookieName  = "checkout-session"
	checkoutKey = "checkout_ids"
	adminKey    = "admin_id"
	maxBound    = 8
)

// NewSessionStore builds the cookie store binding a browser to its sessions.
func NewSessionStore(secret string, secure bool, maxAge int) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// BindCheckout records a checkout session id in the browser's cookie. Only
// the most recent ids are kept.
func BindCheckout(store sessions.Store, w http.ResponseWriter, r *http.Request, id string) error {
	session, err := store.Get(r, CookieName)
	if err != nil {
		log.Printf("Discarding unreadable session cookie: %v", err)
	}

	ids, _ := session.Values[checkoutKey].([]string)
	ids = append(ids, id)
	if len(ids) > maxBound {
		ids = ids[len(ids)-maxBound:]
	}
	session.Values[checkoutKey] = ids
	return session.Save(r, w)
}

// RequireCheckout only lets a request through when the {id} route variable
// names a checkout session bound to the caller's cookie.
func RequireCheckout(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := mux.Vars(r)["id"]
			session, err := store.Get(r, CookieName)
			if err != nil || !contains(session.Values[checkoutKey], id) {
				log.Printf("[Session: %s] request without a bound cookie from %s", id, r.RemoteAddr)
				utils.SendErrorResponse(w, http.StatusForbidden, "Session not found")
				return
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminSession assigns the browser an admin session id on first use.
func AdminSession(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, CookieName)
			if err != nil {
				log.Printf("Discarding unreadable session cookie: %v", err)
			}
			id, _ := session.Values[adminKey].(string)
			if id == "" {
				id = uuid.New().String()
				session.Values[adminKey] = id
				if err := session.Save(r, w); err != nil {
					log.Printf("Error saving admin session: %v", err)
					utils.SendErrorResponse(w, http.StatusInternalServerError, "Could not start session")
					return
				}
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(SessionContextKey).(string)
	return id
}

func contains(v interface{}, id string) bool {
	ids, ok := v.([]string)
	if !ok || id == "" {
		return false
	}
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
