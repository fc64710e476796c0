package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"worldpay-checkout/middleware"
	"worldpay-checkout/models"
	"worldpay-checkout/services/bridge"
	"worldpay-checkout/utils"
)

const maxMessageBytes = 64 << 10

type BridgeHandler struct {
	listener *bridge.Listener
}

func NewBridgeHandler(listener *bridge.Listener) *BridgeHandler {
	return &BridgeHandler{listener: listener}
}

// PostMessage forwards one cross-window message to the session named by the
// bridge token. Unknown message types are accepted and dropped downstream.
func (h *BridgeHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, "Missing bridge token")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := bridge.Decode(payload); errors.Is(err, bridge.ErrMalformed) {
		log.Printf("[Session: %s] Rejecting malformed bridge message: %v", claims.SessionID, err)
		utils.SendErrorResponse(w, http.StatusBadRequest, "Malformed message")
		return
	}

	if err := h.listener.Publish(r.Context(), claims.SessionID, payload); err != nil {
		log.Printf("[Session: %s] Error publishing bridge message: %v", claims.SessionID, err)
		utils.SendErrorResponse(w, http.StatusServiceUnavailable, "Could not deliver message")
		return
	}

	utils.SendJSON(w, http.StatusAccepted, models.APIResponse{
		Status:  "success",
		Message: "Message accepted",
	})
}
