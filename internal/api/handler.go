package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/pulse/internal/gateway"
	"github.com/kalambet/pulse/internal/journal"
	"github.com/kalambet/pulse/internal/push"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the stores and services the HTTP API exposes.
type Deps struct {
	Entries    *journal.EntryStore
	Settings   *journal.SettingsStore
	Onboarding *journal.OnboardingStore
	Push       *push.Handler
	Tray       *push.Tray
	Gateway    *gateway.Gateway // optional; nil disables the offline cache routes
	Database   Pinger           // optional; checked by /health
	Clock      journal.Clock    // optional; defaults to the wall clock
	Logger     *slog.Logger
}

// NewHandler returns the local HTTP API. Requests matching no API route
// fall through to the offline cache gateway.
func NewHandler(deps Deps) http.Handler {
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	// The JSON API lives under /api so app pages such as /settings reach
	// the gateway.
	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", handleListEntries(deps))
		r.Put("/entries", handleReplaceEntries(deps))
		r.Post("/entries", handleUpsertEntry(deps))
		r.Get("/entries/{date}", handleGetEntry(deps))
		r.Get("/today", handleToday(deps))
		r.Get("/streak", handleStreak(deps))

		r.Get("/settings", handleGetSettings(deps))
		r.Patch("/settings", handlePatchSettings(deps))

		r.Get("/onboarding", handleGetOnboarding(deps))
		r.Post("/onboarding/complete", handleCompleteOnboarding(deps))
		r.Delete("/onboarding", handleResetOnboarding(deps))

		r.Get("/events", handleEvents(deps))

		r.Post("/push", handlePush(deps))
		r.Get("/notifications", handleListNotifications(deps))
		r.Post("/notifications/{id}/click", handleNotificationClick(deps))

		r.Get("/gateway", handleGatewayStatus(deps))
		r.Post("/gateway/install", handleGatewayInstall(deps))

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpError(w, http.StatusNotFound, "not_found", "no route for %s %s", r.Method, r.URL.Path)
		})
	})

	if deps.Gateway != nil {
		r.NotFound(deps.Gateway.ServeHTTP)
	}

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Database != nil {
			if err := deps.Database.Ping(r.Context()); err != nil {
				deps.Logger.Error("health check failed", "error", err)
				httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable: %v", err)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
