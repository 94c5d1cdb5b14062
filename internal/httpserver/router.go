package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"merrygit_go/internal/config"
	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
	"merrygit_go/internal/session"

	_ "merrygit_go/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter exposes the session engine to the local UI. auth and profile are
// the backend collaborators; auth is expected to be wrapped in a session.Guard.
func NewRouter(cfg *config.Config, eng *session.Engine, auth domain.AuthService, profile domain.ProfileService, log *zap.Logger) http.Handler {
	log = logger.OrNop(log).Named("http")
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0", "docs": "/docs"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", handleState(eng))

		// Sign-in (no session required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(auth))
			r.Post("/verify", handleVerifyOTP(auth))
			r.Post("/login", handleLogin(auth))
		})
		r.Post("/session", handleStartSession(eng))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(eng))

			r.Get("/auth/me", handleMe(auth))
			r.Post("/auth/logout", handleLogout(auth))
			r.Put("/auth/password", handleChangePassword(auth))

			r.Delete("/session", handleEndSession(eng))
			r.Post("/session/reconnect", handleReconnect(eng))

			r.Route("/profile", func(r chi.Router) {
				r.Put("/", handleUpdateProfile(profile))
				r.Put("/avatar", handleUploadAvatar(profile))
				r.Delete("/avatar", handleDeleteAvatar(profile))
			})

			r.Get("/presence/{userID}", handlePresence(eng))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(eng))
				r.Put("/", handleLoadConversations(eng))
				r.Get("/{chatID}", handleGetConversation(eng))
				r.Post("/{chatID}/select", handleSelectConversation(eng))
				r.Get("/{chatID}/messages", handleListMessages(eng))
				r.Post("/{chatID}/messages", handleSendMessage(eng))
				r.Post("/{chatID}/typing", handleTyping(eng))
			})
			r.Delete("/focus", handleClearFocus(eng))
			r.Post("/messages/{messageID}/unlock", handleUnlock(eng))

			r.Mount("/composer", ComposerRoutes(eng, log))
			r.Get("/previews/{previewID}", handlePreview(eng))

			r.Get("/settings", handleGetSettings(eng))
			r.Put("/settings", handleUpdateSettings(eng))
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNoSession),
		errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyConnected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}
