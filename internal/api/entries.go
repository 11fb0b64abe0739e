package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/pulse/internal/journal"
)

func handleListEntries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Entries.All())
	}
}

func handleReplaceEntries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var entries []journal.DailyEntry
		if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		for i, e := range entries {
			if !journal.ValidDate(e.Date) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "entry %d: date %q must be YYYY-MM-DD", i, e.Date)
				return
			}
		}
		if entries == nil {
			entries = []journal.DailyEntry{}
		}

		if err := deps.Entries.Save(entries); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save entries: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Entries.All())
	}
}

func handleUpsertEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var entry journal.DailyEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if !journal.ValidDate(entry.Date) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "date %q must be YYYY-MM-DD", entry.Date)
			return
		}

		// A date keeps one identity across edits.
		if existing, ok := deps.Entries.GetByDate(entry.Date); ok {
			if entry.ID == "" {
				entry.ID = existing.ID
			}
			if entry.CreatedAt == 0 {
				entry.CreatedAt = existing.CreatedAt
			}
		}

		now := deps.Clock.Now().UnixMilli()
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.CreatedAt == 0 {
			entry.CreatedAt = now
		}
		if entry.UpdatedAt == 0 {
			entry.UpdatedAt = now
		}

		stored, err := deps.Entries.AddOrUpdate(entry)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save entry: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stored)
	}
}

func handleGetEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := chi.URLParam(r, "date")
		if !journal.ValidDate(date) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "date %q must be YYYY-MM-DD", date)
			return
		}

		entry, ok := deps.Entries.GetByDate(date)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no entry for %s", date)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)
	}
}

func handleToday(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := deps.Entries.Today()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no entry for today")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)
	}
}

func handleStreak(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := deps.Entries.Derived()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"streak":   d.Streak,
			"hasToday": d.HasToday,
			"date":     d.Date,
		})
	}
}
