package httpserver

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/session"
)

const maxAvatarBytes = 5 << 20

type profileRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phoneNumber"`
}

func handlePresence(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Presence().Get(chi.URLParam(r, "userID")))
	}
}

func handleUpdateProfile(profile domain.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, err := profile.UpdateProfile(r.Context(), req.Name, req.Username, req.PhoneNumber)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}

func handleUploadAvatar(profile domain.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
			http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("avatar")
		if err != nil {
			http.Error(w, "missing avatar", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes))
		if err != nil {
			http.Error(w, "could not read avatar", http.StatusBadRequest)
			return
		}
		user, err := profile.UploadAvatar(r.Context(), header.Filename, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}

func handleDeleteAvatar(profile domain.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := profile.DeleteAvatar(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}
