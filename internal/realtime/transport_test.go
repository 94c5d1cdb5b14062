package realtime_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/realtime"
)

// echoServer upgrades every request except /denied, pings once, sends a
// greeting and echoes frames until the client closes.
func echoServer(t *testing.T) (url string, auth <-chan string, closes <-chan int) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	authc := make(chan string, 4)
	closec := make(chan int, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/denied" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		authc <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"user:online","data":{"userId":"u2"}}`))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					closec <- ce.Code
				}
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), authc, closec
}

func TestWebsocketDialer(t *testing.T) {
	url, auth, closes := echoServer(t)
	d := realtime.NewWebsocketDialer(time.Second)

	t.Run("round trip", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()

		conn, err := d.Dial(ctx, url, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-1", <-auth)

		frame, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"user:online","data":{"userId":"u2"}}`, string(frame))

		require.NoError(t, conn.WriteMessage([]byte(`{"event":"chat:viewing","data":{"chatId":"c1"}}`)))
		echo, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"chat:viewing","data":{"chatId":"c1"}}`, string(echo))

		require.NoError(t, conn.Close())
		assert.NoError(t, conn.Close())

		select {
		case code := <-closes:
			assert.Equal(t, websocket.CloseNormalClosure, code)
		case <-time.After(waitFor):
			t.Fatal("server never saw a close frame")
		}
	})

	t.Run("unauthorized handshake", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()

		conn, err := d.Dial(ctx, url+"/denied", "stale")
		assert.Nil(t, conn)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := d.Dial(ctx, url, "tok-2")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrUnauthorized)
	})
}
