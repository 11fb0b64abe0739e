package api

import (
	"encoding/json"
	"net/http"
)

func handleGatewayStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Gateway == nil {
			httpError(w, http.StatusNotFound, "not_found", "offline cache is disabled")
			return
		}

		st, err := deps.Gateway.Status(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read gateway status: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}
}

func handleGatewayInstall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Gateway == nil {
			httpError(w, http.StatusNotFound, "not_found", "offline cache is disabled")
			return
		}

		if err := deps.Gateway.Start(r.Context()); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "install failed: %v", err)
			return
		}

		st, err := deps.Gateway.Status(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read gateway status: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}
}
