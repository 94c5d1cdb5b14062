package httpserver

import (
	"net/http"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/session"
)

func handleGetSettings(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Settings())
	}
}

func handleUpdateSettings(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.Settings
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := eng.UpdateSettings(r.Context(), req); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, eng.Settings())
	}
}
