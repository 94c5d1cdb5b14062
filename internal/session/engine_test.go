package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/realtime"
	"merrygit_go/internal/realtime/realtimetest"
	"merrygit_go/internal/security"
	"merrygit_go/internal/session"
)

type MockSessionRepo struct {
	mock.Mock
}

func (m *MockSessionRepo) Save(ctx context.Context, s domain.StoredSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepo) Load(ctx context.Context) (domain.StoredSession, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StoredSession), args.Error(1)
}

func (m *MockSessionRepo) Delete(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func backendToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

type harness struct {
	engine *session.Engine
	repo   *MockSessionRepo
	sealer *security.Sealer
	dialer *realtimetest.Dialer
	net    *realtimetest.Scheduler
	expiry *realtimetest.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sealer, err := security.NewSealer("test-seal", nil)
	require.NoError(t, err)

	h := &harness{
		repo:   new(MockSessionRepo),
		sealer: sealer,
		dialer: &realtimetest.Dialer{},
		net:    &realtimetest.Scheduler{},
		expiry: &realtimetest.Scheduler{},
	}
	h.engine = session.New(session.Options{
		Realtime: realtime.Options{
			URL:       "ws://backend.test/ws",
			Dialer:    h.dialer,
			Scheduler: h.net,
		},
		Sessions:  h.repo,
		Sealer:    sealer,
		Defaults:  domain.Settings{LockDisplayMode: domain.LockDisplayText},
		Scheduler: h.expiry,
		Now:       func() time.Time { return now },
	})
	t.Cleanup(h.engine.Manager().Disconnect)
	return h
}

// start signs in and completes the first connection attempt.
func (h *harness) start(t *testing.T, tok string) *realtimetest.Conn {
	t.Helper()
	conn := realtimetest.NewConn()
	h.dialer.Queue(realtimetest.Result{Conn: conn})
	h.repo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := h.engine.Start(context.Background(), domain.Session{Token: tok})
	require.NoError(t, err)
	require.True(t, h.net.FireNext())
	require.Equal(t, domain.StateConnected, h.engine.Manager().State())
	return conn
}

func TestEngine_Start(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		h := newHarness(t)
		tok := backendToken(t, "u1", now.Add(time.Hour))
		h.repo.On("Save", mock.Anything, mock.MatchedBy(func(s domain.StoredSession) bool {
			plain, err := h.sealer.Open(s.SealedToken)
			return s.UserID == "u1" && s.SealedToken != tok && err == nil && plain == tok
		})).Return(nil)

		sess, err := h.engine.Start(context.Background(), domain.Session{Token: tok})
		require.NoError(t, err)
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, domain.StateConnecting, h.engine.Manager().State())

		h.dialer.Queue(realtimetest.Result{Conn: realtimetest.NewConn()})
		require.True(t, h.net.FireNext())
		assert.Equal(t, domain.StateConnected, h.engine.Manager().State())
		assert.Equal(t, []string{tok}, h.dialer.Tokens())

		assert.Equal(t, 1, h.engine.Manager().SubscriberCount(realtime.EventUserOnline))
		assert.Equal(t, 1, h.engine.Manager().SubscriberCount(realtime.EventMessageReceive))
		assert.Equal(t, "u1", h.engine.Dispatcher().Sender())
		assert.Equal(t, []time.Duration{time.Hour}, h.expiry.Delays())
		h.repo.AssertExpectations(t)
	})

	t.Run("AlreadyStarted", func(t *testing.T) {
		h := newHarness(t)
		h.start(t, backendToken(t, "u1", now.Add(time.Hour)))

		_, err := h.engine.Start(context.Background(), domain.Session{Token: backendToken(t, "u2", now.Add(time.Hour))})
		assert.ErrorIs(t, err, domain.ErrAlreadyConnected)
	})

	t.Run("Expired", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.engine.Start(context.Background(), domain.Session{Token: backendToken(t, "u1", now.Add(-time.Minute))})
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
		h.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		assert.Equal(t, domain.StateDisconnected, h.engine.Manager().State())
	})

	t.Run("OpaqueToken", func(t *testing.T) {
		h := newHarness(t)
		h.repo.On("Save", mock.Anything, mock.MatchedBy(func(s domain.StoredSession) bool {
			return s.UserID == "65f0c1" && s.ExpiresAt.IsZero()
		})).Return(nil)

		sess, err := h.engine.Start(context.Background(), domain.Session{UserID: "65f0c1", Token: "s%3Aopaque-cookie.sig"})
		require.NoError(t, err)
		assert.Equal(t, "65f0c1", sess.UserID)
		assert.True(t, sess.ExpiresAt.IsZero())
		assert.Empty(t, h.expiry.Delays())

		h.dialer.Queue(realtimetest.Result{Conn: realtimetest.NewConn()})
		require.True(t, h.net.FireNext())
		assert.Equal(t, []string{"s%3Aopaque-cookie.sig"}, h.dialer.Tokens())
		assert.Equal(t, "65f0c1", h.engine.Dispatcher().Sender())
		h.repo.AssertExpectations(t)
	})

	t.Run("SuppliedUserIDWins", func(t *testing.T) {
		h := newHarness(t)
		h.repo.On("Save", mock.Anything, mock.Anything).Return(nil)

		sess, err := h.engine.Start(context.Background(), domain.Session{
			UserID: "u9",
			Token:  backendToken(t, "u1", now.Add(time.Hour)),
		})
		require.NoError(t, err)
		assert.Equal(t, "u9", sess.UserID)
		assert.Equal(t, now.Add(time.Hour).Unix(), sess.ExpiresAt.Unix())
	})

	t.Run("SuppliedExpiry", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.engine.Start(context.Background(), domain.Session{UserID: "u1", Token: "opaque", ExpiresAt: now})
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
		h.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("Invalid", func(t *testing.T) {
		h := newHarness(t)

		for name, sess := range map[string]domain.Session{
			"empty token":         {UserID: "u1"},
			"opaque without user": {Token: "opaque"},
			"jwt without user":    {Token: backendToken(t, "", now.Add(time.Hour))},
		} {
			_, err := h.engine.Start(context.Background(), sess)
			assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
		}
		h.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestEngine_Logout(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t, backendToken(t, "u1", now.Add(time.Hour)))
	e := h.engine

	e.Directory().Load([]domain.Conversation{{ID: "c1", ParticipantID: "u2", Messages: []domain.Message{{ID: "m1", SenderID: "u2"}}}})
	require.NoError(t, e.Directory().Select("c1"))
	_, err := e.Composer().Attach(domain.Attachment{Name: "a.png", ContentType: "image/png"})
	require.NoError(t, err)

	h.repo.On("Delete", mock.Anything).Return(nil)
	require.NoError(t, e.Logout(context.Background()))

	frames := conn.Frames()
	require.NotEmpty(t, frames)
	assert.JSONEq(t, `{"event":"chat:not-viewing","data":{"chatId":"c1"}}`, frames[len(frames)-1])

	assert.Equal(t, domain.StateDisconnected, e.Manager().State())
	assert.Equal(t, 0, e.Manager().SubscriberCount(realtime.EventUserOnline))
	assert.Equal(t, 0, e.Manager().SubscriberCount(realtime.EventMessageReceive))
	assert.Equal(t, 0, e.Previews().Live())
	assert.Empty(t, e.Unlocker().Current())
	assert.Empty(t, e.Focus().Current())
	assert.Empty(t, e.Directory().List())
	assert.Equal(t, domain.LocalSenderID, e.Dispatcher().Sender())
	assert.Equal(t, 0, h.expiry.Pending())
	_, ok := e.Session()
	assert.False(t, ok)

	t.Run("again", func(t *testing.T) {
		assert.NoError(t, e.Logout(context.Background()))
		h.repo.AssertNumberOfCalls(t, "Delete", 2)
	})
}

func TestEngine_Expiry(t *testing.T) {
	h := newHarness(t)
	h.start(t, backendToken(t, "u1", now.Add(time.Hour)))
	h.repo.On("Delete", mock.Anything).Return(nil)

	require.True(t, h.expiry.FireNext())

	_, ok := h.engine.Session()
	assert.False(t, ok)
	assert.Equal(t, domain.StateDisconnected, h.engine.Manager().State())
	h.repo.AssertCalled(t, "Delete", mock.Anything)
}

func TestEngine_ForceLogout(t *testing.T) {
	h := newHarness(t)
	h.start(t, backendToken(t, "u1", now.Add(time.Hour)))
	h.repo.On("Delete", mock.Anything).Return(nil)

	h.engine.ForceLogout("401 from profile")

	_, ok := h.engine.Session()
	assert.False(t, ok)
	assert.Equal(t, domain.StateDisconnected, h.engine.Manager().State())
}

func TestEngine_Restore(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		h := newHarness(t)
		tok := backendToken(t, "u1", now.Add(time.Hour))
		sealed, err := h.sealer.Seal(tok)
		require.NoError(t, err)
		h.repo.On("Load", mock.Anything).Return(domain.StoredSession{UserID: "u1", SealedToken: sealed}, nil)
		h.repo.On("Save", mock.Anything, mock.Anything).Return(nil)

		sess, err := h.engine.Restore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, domain.StateConnecting, h.engine.Manager().State())
	})

	t.Run("OpaqueToken", func(t *testing.T) {
		h := newHarness(t)
		sealed, err := h.sealer.Seal("s%3Aopaque-cookie.sig")
		require.NoError(t, err)
		h.repo.On("Load", mock.Anything).Return(domain.StoredSession{UserID: "65f0c1", SealedToken: sealed, ExpiresAt: now.Add(time.Hour)}, nil)
		h.repo.On("Save", mock.Anything, mock.Anything).Return(nil)

		sess, err := h.engine.Restore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "65f0c1", sess.UserID)
		assert.Equal(t, "s%3Aopaque-cookie.sig", sess.Token)
		assert.Equal(t, []time.Duration{time.Hour}, h.expiry.Delays())
	})

	t.Run("NothingStored", func(t *testing.T) {
		h := newHarness(t)
		h.repo.On("Load", mock.Anything).Return(domain.StoredSession{}, domain.ErrNoSession)

		_, err := h.engine.Restore(context.Background())
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})

	t.Run("BrokenSeal", func(t *testing.T) {
		h := newHarness(t)
		h.repo.On("Load", mock.Anything).Return(domain.StoredSession{UserID: "u1", SealedToken: "garbage"}, nil)
		h.repo.On("Delete", mock.Anything).Return(nil)

		_, err := h.engine.Restore(context.Background())
		assert.ErrorIs(t, err, domain.ErrNoSession)
		h.repo.AssertCalled(t, "Delete", mock.Anything)
	})

	t.Run("Expired", func(t *testing.T) {
		h := newHarness(t)
		sealed, err := h.sealer.Seal(backendToken(t, "u1", now.Add(-time.Hour)))
		require.NoError(t, err)
		h.repo.On("Load", mock.Anything).Return(domain.StoredSession{UserID: "u1", SealedToken: sealed}, nil)
		h.repo.On("Delete", mock.Anything).Return(nil)

		_, err = h.engine.Restore(context.Background())
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
		h.repo.AssertCalled(t, "Delete", mock.Anything)
	})
}

func TestEngine_Reconnect(t *testing.T) {
	h := newHarness(t)
	h.repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	assert.ErrorIs(t, h.engine.Reconnect(), domain.ErrNoSession)

	_, err := h.engine.Start(context.Background(), domain.Session{Token: backendToken(t, "u1", now.Add(time.Hour))})
	require.NoError(t, err)
	for h.net.FireNext() {
	}
	require.Equal(t, domain.StateDisconnected, h.engine.Manager().State())

	require.NoError(t, h.engine.Reconnect())
	assert.Equal(t, domain.StateConnecting, h.engine.Manager().State())
	assert.Equal(t, 0, h.engine.Manager().Attempts())
	assert.ErrorIs(t, h.engine.Reconnect(), domain.ErrAlreadyConnected)
}

func TestEngine_Settings(t *testing.T) {
	h := newHarness(t)
	h.start(t, backendToken(t, "u1", now.Add(time.Hour)))
	e := h.engine
	e.Directory().Load([]domain.Conversation{{
		ID: "c1", ParticipantID: "u2",
		Messages: []domain.Message{{ID: "m1", Content: "one"}, {ID: "m2", Content: "two"}},
	}})
	require.NoError(t, e.Directory().Select("c1"))

	err := e.UpdateSettings(context.Background(), domain.Settings{LockDisplayMode: "blur"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, e.UpdateSettings(context.Background(), domain.Settings{
		LockDisplayMode: domain.LockDisplayCustom, CustomLockText: "sealed",
	}))

	msgs, err := e.Rendered("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "sealed", msgs[0].Content)
	assert.True(t, msgs[0].Locked)
	assert.Equal(t, "two", msgs[1].Content)
	assert.False(t, msgs[1].Locked)

	_, err = e.Rendered("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
