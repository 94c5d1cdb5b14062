package httpserver

import (
	"net/http"
	"time"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/session"
)

type startSessionRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type sessionResponse struct {
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newSessionResponse(s domain.Session) sessionResponse {
	resp := sessionResponse{UserID: s.UserID}
	if !s.ExpiresAt.IsZero() {
		exp := s.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

type stateResponse struct {
	SignedIn           bool                   `json:"signed_in"`
	UserID             string                 `json:"user_id,omitempty"`
	Connection         domain.ConnectionState `json:"connection"`
	Attempts           int                    `json:"attempts"`
	ActiveChat         string                 `json:"active_chat,omitempty"`
	Viewing            string                 `json:"viewing,omitempty"`
	UnlockedMessage    string                 `json:"unlocked_message,omitempty"`
	PendingAttachments int                    `json:"pending_attachments"`
}

// @Summary      Start a session
// @Description  Start the realtime session with a backend session token. The user id may be omitted when the token is a JWT carrying it.
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        input body startSessionRequest true "Backend token"
// @Success      201  {object}  sessionResponse
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /session [post]
func handleStartSession(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Token == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
			return
		}
		sess, err := eng.Start(r.Context(), domain.Session{UserID: req.UserID, Token: req.Token})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSessionResponse(sess))
	}
}

// @Summary      End the session
// @Tags         session
// @Security     BearerAuth
// @Success      204
// @Router       /session [delete]
func handleEndSession(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Logout(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Reconnect
// @Description  Restart the connection after reconnect attempts ran out
// @Tags         session
// @Security     BearerAuth
// @Success      202
// @Failure      409  {object}  map[string]string
// @Router       /session/reconnect [post]
func handleReconnect(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Reconnect(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// @Summary      Engine state
// @Tags         session
// @Produce      json
// @Success      200  {object}  stateResponse
// @Router       /state [get]
func handleState(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := stateResponse{
			Connection: eng.Manager().State(),
			Attempts:   eng.Manager().Attempts(),
		}
		if sess, ok := eng.Session(); ok {
			resp.SignedIn = true
			resp.UserID = sess.UserID
			resp.ActiveChat = eng.Directory().Active()
			resp.Viewing = eng.Focus().Current()
			resp.UnlockedMessage = eng.Unlocker().Current()
			resp.PendingAttachments = len(eng.Composer().Pending())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
