// Package session ties the realtime core to the signed-in session: it starts
// the connection and state stores on sign-in and tears all of it down on
// logout, expiry or rejection by the auth collaborator.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"merrygit_go/internal/chat"
	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
	"merrygit_go/internal/presence"
	"merrygit_go/internal/preview"
	"merrygit_go/internal/realtime"
	"merrygit_go/internal/security"
)

// TokenSealer protects the stored token. *security.Sealer implements it.
type TokenSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type Options struct {
	Realtime realtime.Options
	Sessions domain.SessionRepository
	Settings domain.SettingsRepository
	Sealer   TokenSealer
	Defaults domain.Settings

	// Scheduler arms the expiry timer. Defaults to the wall clock.
	Scheduler realtime.Scheduler
	Now       func() time.Time
	Logger    *zap.Logger
}

type Engine struct {
	log      *zap.Logger
	sessions domain.SessionRepository
	settings domain.SettingsRepository
	sealer   TokenSealer
	sched    realtime.Scheduler
	now      func() time.Time

	manager    *realtime.Manager
	presence   *presence.Store
	focus      *chat.Focus
	unlock     *chat.Unlocker
	directory  *chat.Directory
	dispatcher *chat.Dispatcher
	composer   *chat.Composer
	previews   *preview.Registry

	mu      sync.Mutex
	session *domain.Session
	expiry  realtime.Timer

	settingsMu sync.RWMutex
	current    domain.Settings
}

func New(opts Options) *Engine {
	log := logger.OrNop(opts.Logger)
	if opts.Realtime.Logger == nil {
		opts.Realtime.Logger = log
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realtime.WallScheduler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if !opts.Defaults.LockDisplayMode.Valid() {
		opts.Defaults.LockDisplayMode = domain.LockDisplayText
	}

	mgr := realtime.NewManager(opts.Realtime)
	unlock := chat.NewUnlocker()
	focus := chat.NewFocus(mgr, log)
	dir := chat.NewDirectory(focus, unlock, mgr, log)
	previews := preview.NewRegistry(log)

	return &Engine{
		log:        log.Named("session"),
		sessions:   opts.Sessions,
		settings:   opts.Settings,
		sealer:     opts.Sealer,
		sched:      opts.Scheduler,
		now:        opts.Now,
		manager:    mgr,
		presence:   presence.NewStore(log),
		focus:      focus,
		unlock:     unlock,
		directory:  dir,
		dispatcher: chat.NewDispatcher(dir, unlock),
		composer:   chat.NewComposer(previews),
		previews:   previews,
		current:    opts.Defaults,
	}
}

func (e *Engine) Manager() *realtime.Manager   { return e.manager }
func (e *Engine) Presence() *presence.Store    { return e.presence }
func (e *Engine) Focus() *chat.Focus           { return e.focus }
func (e *Engine) Unlocker() *chat.Unlocker     { return e.unlock }
func (e *Engine) Directory() *chat.Directory   { return e.directory }
func (e *Engine) Dispatcher() *chat.Dispatcher { return e.dispatcher }
func (e *Engine) Composer() *chat.Composer     { return e.composer }
func (e *Engine) Previews() *preview.Registry  { return e.previews }

// Session returns the active session, or false when signed out.
func (e *Engine) Session() (domain.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.Session{}, false
	}
	return *e.session, true
}

// Start signs in with a backend session: the token is stored sealed, the
// presence store and conversation list are attached and the connection is
// started. The token is used as-is. When it is a JWT its claims fill in a
// missing user id or expiry; any other token never expires. A second Start
// without Logout fails with ErrAlreadyConnected.
func (e *Engine) Start(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if sess.Token == "" {
		return domain.Session{}, fmt.Errorf("empty token: %w", domain.ErrInvalidInput)
	}
	if claims, err := security.ParseSessionToken(sess.Token); err == nil {
		if sess.UserID == "" {
			sess.UserID = claims.UserID
		}
		if sess.ExpiresAt.IsZero() {
			sess.ExpiresAt = claims.ExpiresAt
		}
	} else {
		e.log.Debug("opaque session token", zap.Error(err))
	}
	if sess.UserID == "" {
		return domain.Session{}, fmt.Errorf("session has no user id: %w", domain.ErrInvalidInput)
	}
	if sess.Expired(e.now()) {
		return domain.Session{}, domain.ErrSessionExpired
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return domain.Session{}, domain.ErrAlreadyConnected
	}

	sealed, err := e.sealer.Seal(sess.Token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("seal token: %w", err)
	}
	stored := domain.StoredSession{UserID: sess.UserID, SealedToken: sealed, ExpiresAt: sess.ExpiresAt}
	if err := e.sessions.Save(ctx, stored); err != nil {
		return domain.Session{}, err
	}

	e.presence.Attach(e.manager)
	e.directory.Attach(e.manager)
	e.dispatcher.SetSender(sess.UserID)
	if err := e.manager.Connect(sess.Token); err != nil {
		e.presence.Detach()
		e.directory.Detach()
		e.dispatcher.SetSender("")
		return domain.Session{}, err
	}

	if !sess.ExpiresAt.IsZero() {
		token := sess.Token
		e.expiry = e.sched.AfterFunc(sess.ExpiresAt.Sub(e.now()), func() {
			e.end(context.Background(), token, "session expired")
		})
	}
	e.session = &sess
	e.log.Info("session started", zap.String("user_id", sess.UserID))
	return sess, nil
}

// Restore starts the stored session. It returns ErrNoSession when nothing
// usable is stored and ErrSessionExpired when the stored token has expired;
// in both cases the stored record is gone afterwards.
func (e *Engine) Restore(ctx context.Context) (domain.Session, error) {
	stored, err := e.sessions.Load(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	token, err := e.sealer.Open(stored.SealedToken)
	if err != nil {
		e.log.Warn("stored session cannot be opened, discarding", zap.Error(err))
		e.forget(ctx)
		return domain.Session{}, fmt.Errorf("stored session: %w", domain.ErrNoSession)
	}

	sess, err := e.Start(ctx, domain.Session{UserID: stored.UserID, Token: token, ExpiresAt: stored.ExpiresAt})
	if errors.Is(err, domain.ErrSessionExpired) || errors.Is(err, domain.ErrInvalidInput) {
		e.forget(ctx)
	}
	return sess, err
}

// Reconnect resumes a session whose connection gave up after the last
// reconnect attempt.
func (e *Engine) Reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.ErrNoSession
	}
	return e.manager.Connect(e.session.Token)
}

// Logout ends the session and forgets the stored token. It is a no-op when
// signed out.
func (e *Engine) Logout(ctx context.Context) error {
	e.end(ctx, "", "logout")
	return nil
}

// ForceLogout ends the session after the auth collaborator rejected it.
func (e *Engine) ForceLogout(reason string) {
	e.end(context.Background(), "", reason)
}

// end tears the session down. A non-empty token only ends the session
// started with it.
func (e *Engine) end(ctx context.Context, token, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.session
	if sess == nil || (token != "" && sess.Token != token) {
		if token == "" {
			e.forget(ctx)
		}
		return
	}
	e.session = nil
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}

	// leave the open conversation while the channel is still up
	e.directory.Deselect()
	e.presence.Detach()
	e.directory.Detach()
	e.manager.Disconnect()
	e.composer.Clear()
	e.previews.ReleaseAll()
	e.unlock.Reset()
	e.directory.Reset()
	e.dispatcher.SetSender("")
	e.forget(ctx)

	if reason == "logout" {
		e.log.Info("session ended", zap.String("user_id", sess.UserID))
	} else {
		e.log.Warn("forced logout", zap.String("user_id", sess.UserID), zap.String("reason", reason))
	}
}

func (e *Engine) forget(ctx context.Context) {
	if err := e.sessions.Delete(ctx); err != nil {
		e.log.Error("failed to delete stored session", zap.Error(err))
	}
}

// LoadSettings replaces the defaults with stored settings, if any.
func (e *Engine) LoadSettings(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	s, err := e.settings.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		e.log.Warn("ignoring stored settings", zap.Error(err))
		return nil
	}
	e.settingsMu.Lock()
	e.current = s
	e.settingsMu.Unlock()
	return nil
}

func (e *Engine) Settings() domain.Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.current
}

func (e *Engine) UpdateSettings(ctx context.Context, s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if e.settings != nil {
		if err := e.settings.Save(ctx, s); err != nil {
			return err
		}
	}
	e.settingsMu.Lock()
	e.current = s
	e.settingsMu.Unlock()
	return nil
}

// Rendered returns the messages of chatID as the UI should show them.
func (e *Engine) Rendered(chatID string) ([]chat.RenderedMessage, error) {
	conv, err := e.directory.Get(chatID)
	if err != nil {
		return nil, err
	}
	s := e.Settings()
	out := make([]chat.RenderedMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, e.unlock.Render(m, s.LockDisplayMode, s.CustomLockText))
	}
	return out, nil
}
