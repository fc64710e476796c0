package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"worldpay-checkout/utils"
)

// Pinger is satisfied by the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	redis     Pinger
	sessions  interface{ Len() int }
	startTime time.Time
}

func NewHealthHandler(redis Pinger, sessions interface{ Len() int }) *HealthHandler {
	return &HealthHandler{redis: redis, sessions: sessions, startTime: time.Now()}
}

type healthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	Redis     string `json:"redis"`
	Sessions  int    `json:"sessions"`
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := healthResponse{
		Status:    "ok",
		Time:      time.Now().Format(time.RFC3339),
		Redis:     "connected",
		Sessions:  h.sessions.Len(),
		Uptime:    fmt.Sprintf("%v", time.Since(h.startTime)),
		GoVersion: runtime.Version(),
	}

	if h.redis == nil {
		health.Redis = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Redis = "error"
		}
	}

	utils.SendJSON(w, http.StatusOK, health)
}
