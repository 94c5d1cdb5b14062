package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"merrygit_go/internal/backend"
	"merrygit_go/internal/config"
	"merrygit_go/internal/domain"
	"merrygit_go/internal/httpserver"
	"merrygit_go/internal/logger"
	"merrygit_go/internal/realtime"
	"merrygit_go/internal/security"
	"merrygit_go/internal/session"
	"merrygit_go/internal/store/postgres"
	"merrygit_go/internal/store/sqlite"
)

// @title           MerryGit Realtime Bridge API
// @version         1.0
// @description     Local API over the realtime presence and message-unlock engine.

// @host            localhost:8090
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Debug)
	defer func() { _ = log.Sync() }()

	db, sessions, settings, err := openStore(cfg)
	if err != nil {
		log.Fatal("failed to open session store", zap.String("store", cfg.SessionStore), zap.Error(err))
	}
	defer db.Close()

	sealer, err := security.NewSealer(cfg.SessionSealKey, cfg.SessionSealLegacyKeys)
	if err != nil {
		log.Fatal("failed to initialize sealer", zap.Error(err))
	}

	var eng *session.Engine
	client := backend.New(backend.Options{
		BaseURL:     cfg.BackendURL,
		TokenCookie: cfg.BackendTokenCookie,
		Timeout:     cfg.BackendTimeout,
		Token: func() string {
			s, _ := eng.Session()
			return s.Token
		},
		Logger: log,
	})

	eng = session.New(session.Options{
		Realtime: realtime.Options{
			URL:            cfg.SocketURL,
			MaxAttempts:    cfg.MaxReconnectAttempts,
			BaseDelay:      cfg.ReconnectDelay,
			MaxDelay:       cfg.ReconnectDelayMax,
			ConnectTimeout: cfg.ConnectTimeout,
			Dialer:         realtime.NewWebsocketDialer(cfg.ConnectTimeout),
		},
		Sessions: sessions,
		Settings: settings,
		Sealer:   sealer,
		Defaults: domain.Settings{LockDisplayMode: cfg.LockDisplayMode, CustomLockText: cfg.CustomLockText},
		Logger:   log,
	})

	eng.Manager().OnLifecycle(func(ev realtime.LifecycleEvent) {
		switch ev.Kind {
		case realtime.LifecycleReconnectExhausted:
			log.Warn("realtime connection gave up", zap.Int("attempts", ev.Attempt), zap.Error(ev.Err))
		case realtime.LifecycleServerError:
			log.Warn("realtime server error", zap.Error(ev.Err))
		default:
			log.Debug("realtime lifecycle", zap.String("kind", string(ev.Kind)), zap.Int("attempt", ev.Attempt))
		}
	})
	eng.Directory().OnRefresh(func(chatID string) {
		log.Info("conversation list is stale", zap.String("chat_id", chatID))
	})

	ctx := context.Background()
	if err := eng.LoadSettings(ctx); err != nil {
		log.Error("failed to load settings, using defaults", zap.Error(err))
	}
	if sess, err := eng.Restore(ctx); err == nil {
		log.Info("restored session", zap.String("user_id", sess.UserID))
	} else if !errors.Is(err, domain.ErrNoSession) {
		log.Warn("stored session not restored", zap.Error(err))
	}

	// Build HTTP router
	router := httpserver.NewRouter(cfg, eng, session.NewGuard(client, eng), client, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Info("starting bridge", zap.String("addr", cfg.HTTPAddr()), zap.String("socket_url", cfg.SocketURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down bridge")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	// keep the stored session so the next start can restore it
	eng.Manager().Disconnect()
}

func openStore(cfg *config.Config) (*sql.DB, domain.SessionRepository, domain.SettingsRepository, error) {
	switch cfg.SessionStore {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, postgres.NewSessionRepo(db), postgres.NewSettingsRepo(db), nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, sqlite.NewSessionRepo(db), sqlite.NewSettingsRepo(db), nil
	}
}
