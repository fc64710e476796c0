package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"worldpay-checkout/services/admin"
	"worldpay-checkout/services/backend"
	"worldpay-checkout/services/checkout"
	"worldpay-checkout/utils"
)

const (
	checkoutRelayPrefix = "/api/checkout/sessions/"
	adminRelayPrefix    = "/api/admin/backend/"
	relaySegment        = "/backend/"
)

// Relayer carries a session's backend login pages through that session's own
// cookie jar, so a login in the popup also logs in the host's backend calls.
type Relayer interface {
	Relay(ctx context.Context, method, path, rawQuery string, body io.Reader, header http.Header) (*http.Response, error)
	RelayURL(prefix, target string) string
}

type CheckoutBackend interface {
	checkout.Backend
	Relayer
}

type AdminBackend interface {
	admin.Backend
	Relayer
}

func checkoutRelayPath(sessionID string) string {
	return checkoutRelayPrefix + sessionID + relaySegment
}

// relay forwards the request below prefix to the backend and copies the reply
// back. Backend cookies stay in the jar; redirects into the backend are mapped
// back under prefix.
func relay(w http.ResponseWriter, r *http.Request, rel Relayer, prefix, sessionID string) {
	target := strings.TrimPrefix(r.URL.Path, prefix)
	var body io.Reader
	if r.Body != nil && r.ContentLength != 0 {
		body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}
	resp, err := rel.Relay(r.Context(), r.Method, target, r.URL.RawQuery, body, r.Header)
	if errors.Is(err, backend.ErrRelayForbidden) {
		utils.SendErrorResponse(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		log.Printf("[Session: %s] Relay of %s failed: %v", sessionID, target, err)
		utils.SendErrorResponse(w, http.StatusBadGateway, "Something went wrong")
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if key == "Set-Cookie" || key == "Location" {
			continue
		}
		w.Header()[key] = append([]string(nil), values...)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		w.Header().Set("Location", rel.RelayURL(prefix, loc))
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[Session: %s] Relay of %s cut short: %v", sessionID, target, err)
	}
}
