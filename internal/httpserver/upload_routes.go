package httpserver

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/preview"
	"merrygit_go/internal/session"
)

const maxAttachmentBytes = 10 << 20

type previewResponse struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

func toPreviewResponses(handles []*preview.Handle) []previewResponse {
	out := make([]previewResponse, 0, len(handles))
	for i, h := range handles {
		out = append(out, previewResponse{Index: i, ID: h.ID, URL: h.URL, Name: h.Name, ContentType: h.ContentType})
	}
	return out
}

// ComposerRoutes returns a sub-router mounted at /api/composer.
// - GET /                      -> pending attachments
// - POST /attachments          -> multipart upload, field "file"
// - DELETE /attachments/{index} -> drop one attachment
// - DELETE /                   -> drop all
func ComposerRoutes(eng *session.Engine, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toPreviewResponses(eng.Composer().Pending()))
	})

	r.Post("/attachments", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
			http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
		if err != nil {
			log.Error("failed to read attachment", zap.String("filename", header.Filename), zap.Error(err))
			http.Error(w, "could not read file", http.StatusInternalServerError)
			return
		}
		if len(data) > maxAttachmentBytes {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		h, err := eng.Composer().Attach(domain.Attachment{Name: header.Filename, ContentType: contentType, Data: data})
		if err != nil {
			writeError(w, err)
			return
		}

		pending := eng.Composer().Pending()
		writeJSON(w, http.StatusCreated, previewResponse{
			Index: len(pending) - 1, ID: h.ID, URL: h.URL, Name: h.Name, ContentType: h.ContentType,
		})
	})

	r.Delete("/attachments/{index}", func(w http.ResponseWriter, r *http.Request) {
		i, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
		if err := eng.Composer().Remove(i); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
		eng.Composer().Clear()
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// handlePreview serves the bytes behind a live preview.
func handlePreview(eng *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, data, err := eng.Previews().Get(chi.URLParam(r, "previewID"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", h.ContentType)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
