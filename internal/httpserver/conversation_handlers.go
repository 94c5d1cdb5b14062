package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/realtime"
	"merrygit_go/internal/session"
)

type conversationResponse struct {
	domain.Conversation
	Presence domain.PresenceEntry `json:"presence"`
	Typing   []string             `json:"typing"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

func handleListConversations(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Directory().List())
	}
}

// handleLoadConversations replaces the conversation list, typically right
// after the UI fetched it from the backend.
func handleLoadConversations(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var convs []domain.Conversation
		if !decodeJSON(w, r, &convs) {
			return
		}
		eng.Directory().Load(convs)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetConversation(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chatID")
		conv, err := eng.Directory().Get(chatID)
		if err != nil {
			writeError(w, err)
			return
		}

		// live presence supersedes the seed values once anything was heard
		p, ok := eng.Presence().Lookup(conv.ParticipantID)
		if !ok {
			p = domain.PresenceEntry{IsOnline: conv.IsOnline, IsViewing: conv.IsViewing}
		}
		writeJSON(w, http.StatusOK, conversationResponse{
			Conversation: conv,
			Presence:     p,
			Typing:       eng.Directory().TypingUsers(chatID),
		})
	}
}

func handleSelectConversation(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Directory().Select(chi.URLParam(r, "chatID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleClearFocus(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng.Directory().Deselect()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleTyping(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chatID")
		if _, err := eng.Directory().Get(chatID); err != nil {
			writeError(w, err)
			return
		}
		var req typingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var ev realtime.OutboundEvent = realtime.StopTyping{ChatID: chatID}
		if req.Typing {
			ev = realtime.StartTyping{ChatID: chatID}
		}
		if err := eng.Manager().Emit(ev); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
