package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merrygit_go/internal/backend"
	"merrygit_go/internal/domain"
)

type fakeBackend struct {
	lastCookie string
	lastBody   map[string]string
	avatar     []byte
}

func (f *fakeBackend) server(t *testing.T) *httptest.Server {
	r := chi.NewRouter()
	r.Post("/user/login", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		if f.lastBody["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "jwt-1", HttpOnly: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"ok","userData":{"_id":"u1","name":"Alice","email":"a@b.c"}}`)
	})
	r.Post("/user/verify", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"ok","user":{"_id":"u2"}}`)
	})
	r.Get("/user/me", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("token")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.lastCookie = ck.Value
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"user":{"_id":"u1","username":"alice"}}`)
	})
	r.Put("/user/update-avatar", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("avatar")
		if !assert.NoError(t, err) {
			return
		}
		f.avatar, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"user":{"_id":"u1"}}`)
	})
	r.Post("/user/register", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"message":"Email already registered"}`)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Login(t *testing.T) {
	f := &fakeBackend{}
	srv := f.server(t)
	c := backend.New(backend.Options{BaseURL: srv.URL})

	t.Run("Success", func(t *testing.T) {
		u, sess, err := c.Login(context.Background(), "a@b.c", "secret")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, "Alice", u.Name)
		assert.Equal(t, domain.Session{UserID: "u1", Token: "jwt-1"}, sess)
		assert.Equal(t, "a@b.c", f.lastBody["email"])
	})

	t.Run("BadCredentials", func(t *testing.T) {
		_, _, err := c.Login(context.Background(), "a@b.c", "wrong")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Contains(t, err.Error(), "Invalid credentials")
	})

	t.Run("NoCookie", func(t *testing.T) {
		_, _, err := c.VerifyOTP(context.Background(), "a@b.c", "123456")
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})
}

func TestClient_Authenticated(t *testing.T) {
	f := &fakeBackend{}
	srv := f.server(t)
	token := ""
	c := backend.New(backend.Options{BaseURL: srv.URL, Token: func() string { return token }})

	_, err := c.CurrentUser(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	token = "jwt-1"
	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "jwt-1", f.lastCookie)

	u, err = c.UploadAvatar(context.Background(), "me.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, []byte("png"), f.avatar)

	_, err = c.UploadAvatar(context.Background(), "me.png", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_StatusMapping(t *testing.T) {
	f := &fakeBackend{}
	srv := f.server(t)
	c := backend.New(backend.Options{BaseURL: srv.URL})

	err := c.Register(context.Background(), domain.RegisterInput{Email: "a@b.c"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = c.ChangePassword(context.Background(), "old", "new")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
