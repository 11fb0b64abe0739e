package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/pulse/internal/push"
)

func handlePush(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
			return
		}
		if err := deps.Push.HandlePush(r.Context(), data); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to deliver push: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}

func handleListNotifications(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Tray.List())
	}
}

type clickRequest struct {
	Action string `json:"action"`
}

// redirectClients records the window a click asks to open so the handler
// can answer with a redirect.
type redirectClients struct {
	url string
}

func (c *redirectClients) OpenWindow(_ context.Context, url string) error {
	c.url = url
	return nil
}

func handleNotificationClick(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req clickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id := chi.URLParam(r, "id")
		n, ok := deps.Tray.Get(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}

		clients := &redirectClients{}
		if err := deps.Push.HandleClick(r.Context(), n, req.Action, clients); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to handle click: %v", err)
			return
		}
		if req.Action == push.ActionDismiss || clients.url == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Redirect(w, r, clients.url, http.StatusSeeOther)
	}
}
