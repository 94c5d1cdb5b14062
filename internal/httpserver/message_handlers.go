package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"merrygit_go/internal/session"
)

type messageCreateRequest struct {
	Content string `json:"content"`
}

// @Summary      Send a message
// @Description  Append a message with the pending composer attachments and unlock it
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        chatID path string true "Conversation ID"
// @Param        input body messageCreateRequest true "Message"
// @Success      201  {object}  domain.Message
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /conversations/{chatID}/messages [post]
func handleSendMessage(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := eng.Composer().Submit(eng.Dispatcher(), chi.URLParam(r, "chatID"), req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// @Summary      List messages
// @Description  Messages as displayed: only the unlocked one is in cleartext
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        chatID path string true "Conversation ID"
// @Success      200  {array}   chat.RenderedMessage
// @Failure      404  {object}  map[string]string
// @Router       /conversations/{chatID}/messages [get]
func handleListMessages(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := eng.Rendered(chi.URLParam(r, "chatID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleUnlock(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng.Unlocker().Unlock(chi.URLParam(r, "messageID"))
		w.WriteHeader(http.StatusNoContent)
	}
}
