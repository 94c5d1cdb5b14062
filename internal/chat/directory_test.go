package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/presence"
	"merrygit_go/internal/realtime"
	"merrygit_go/internal/realtime/realtimetest"
)

func TestDirectory_Select(t *testing.T) {
	t.Run("unlocks latest message", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.dir.Select("1"))

		assert.Equal(t, "m5", f.unlock.Current())
		assert.Equal(t, "1", f.dir.Active())
		assert.Equal(t, "1", f.focus.Current())
	})

	t.Run("marks unread read and sends one receipt", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.dir.Select("1"))

		c, err := f.dir.Get("1")
		require.NoError(t, err)
		assert.Equal(t, 0, c.UnreadCount)
		for _, m := range c.Messages {
			assert.True(t, m.IsRead, m.ID)
		}
		assert.Contains(t, f.emit.events, realtime.OutboundEvent(realtime.ReadMessage{ChatID: "1", MessageID: "m5"}))
	})

	t.Run("empty conversation keeps unlock", func(t *testing.T) {
		f := newFixture(t)
		f.unlock.Unlock("m6")

		require.NoError(t, f.dir.Select("3"))
		assert.Equal(t, "m6", f.unlock.Current())
	})

	t.Run("switching emits focus transitions", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.dir.Select("1"))
		require.NoError(t, f.dir.Select("2"))
		require.NoError(t, f.dir.Select("2"))
		f.dir.Deselect()

		assert.Equal(t, []realtime.OutboundEvent{
			realtime.ViewChat{ChatID: "1"},
			realtime.StopViewingChat{ChatID: "1"},
			realtime.ViewChat{ChatID: "2"},
			realtime.StopViewingChat{ChatID: "2"},
		}, f.emit.viewing())
		assert.Empty(t, f.dir.Active())
	})

	t.Run("unknown conversation", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.dir.Select("nope"), domain.ErrNotFound)
		assert.Empty(t, f.emit.viewing())
	})
}

func TestDirectory_Append(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.dir.Append("2", msg("m9", "me", "user2", false)))
	assert.ErrorIs(t, f.dir.Append("2", msg("m9", "me", "user2", false)), domain.ErrInvalidInput)
	assert.ErrorIs(t, f.dir.Append("2", domain.Message{}), domain.ErrInvalidInput)
	assert.ErrorIs(t, f.dir.Append("nope", msg("m10", "me", "x", false)), domain.ErrNotFound)

	c, err := f.dir.Get("2")
	require.NoError(t, err)
	assert.Len(t, c.Messages, 3)
	assert.Equal(t, "m9", c.Messages[2].ID)
}

func TestDirectory_LoadAndList(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dir.Select("2"))

	list := f.dir.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{list[0].ID, list[1].ID, list[2].ID})

	// callers get copies
	list[0].Messages[0].Content = "tampered"
	c, _ := f.dir.Get("1")
	assert.Equal(t, "content of m1", c.Messages[0].Content)

	t.Run("reload keeps active conversation", func(t *testing.T) {
		f.dir.Load(fixtureConversations())
		assert.Equal(t, "2", f.dir.Active())
		assert.Equal(t, "2", f.focus.Current())
	})

	t.Run("reload without active conversation clears focus", func(t *testing.T) {
		f.dir.Load(fixtureConversations()[:1])
		assert.Empty(t, f.dir.Active())
		assert.Empty(t, f.focus.Current())
	})
}

func TestDirectory_ActivePresence(t *testing.T) {
	f := newFixture(t)
	store := presence.NewStore(nil)

	assert.Equal(t, domain.PresenceEntry{}, f.dir.ActivePresence(store))

	require.NoError(t, f.dir.Select("1"))
	assert.Equal(t, domain.PresenceEntry{IsOnline: true, IsViewing: true}, f.dir.ActivePresence(store), "seed values")

	env, conn := realtimetest.Connected(t)
	store.Attach(env.Manager)
	conn.Push(`{"event":"user:offline","data":{"userId":"user1"}}`)

	eventually(t, func() bool {
		_, ok := store.Lookup("user1")
		return ok
	})
	assert.Equal(t, domain.PresenceEntry{IsOnline: false, IsViewing: false}, f.dir.ActivePresence(store), "live values win")
}

func TestDirectory_Inbound(t *testing.T) {
	f := newFixture(t)
	env, conn := realtimetest.Connected(t)
	f.dir.Attach(env.Manager)
	require.NoError(t, f.dir.Select("1"))

	var mu sync.Mutex
	var refreshed []string
	f.dir.OnRefresh(func(chatID string) {
		mu.Lock()
		refreshed = append(refreshed, chatID)
		mu.Unlock()
	})
	refreshCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(refreshed)
	}

	t.Run("message in active conversation auto-unlocks", func(t *testing.T) {
		conn.Push(`{"event":"message:receive","data":{"chatId":"1","message":{"id":"m20","content":"new","senderId":"user1","receiverId":"me","timestamp":"11:00","isEncrypted":true}}}`)

		eventually(t, func() bool { return f.unlock.Current() == "m20" })
		c, _ := f.dir.Get("1")
		assert.Equal(t, 0, c.UnreadCount)
		assert.Equal(t, "m20", c.Messages[len(c.Messages)-1].ID)
	})

	t.Run("message elsewhere counts as unread", func(t *testing.T) {
		conn.Push(`{"event":"message:receive","data":{"chatId":"2","message":{"id":"m21","content":"psst","senderId":"user2","receiverId":"me","timestamp":"11:01","isEncrypted":true}}}`)

		eventually(t, func() bool {
			c, _ := f.dir.Get("2")
			return c.UnreadCount == 1
		})
		assert.Equal(t, "m20", f.unlock.Current())
	})

	t.Run("duplicate delivery is ignored", func(t *testing.T) {
		conn.Push(`{"event":"message:receive","data":{"chatId":"2","message":{"id":"m21","content":"psst","senderId":"user2","receiverId":"me","timestamp":"11:01","isEncrypted":true}}}`)
		conn.Push(`{"event":"chat:updated","data":{"chatId":"marker"}}`)

		eventually(t, func() bool { return refreshCount() == 1 })
		c, _ := f.dir.Get("2")
		assert.Equal(t, 1, c.UnreadCount)
		assert.Len(t, c.Messages, 3)
	})

	t.Run("unknown conversation asks for refresh", func(t *testing.T) {
		conn.Push(`{"event":"message:receive","data":{"chatId":"99","message":{"id":"x1","content":"hi","senderId":"user9","receiverId":"me","timestamp":"11:02","isEncrypted":true}}}`)

		eventually(t, func() bool { return refreshCount() == 2 })
		mu.Lock()
		assert.Equal(t, []string{"marker", "99"}, refreshed)
		mu.Unlock()
	})

	t.Run("typing", func(t *testing.T) {
		conn.Push(`{"event":"typing:start","data":{"chatId":"1","userId":"user1"}}`)
		eventually(t, func() bool { return len(f.dir.TypingUsers("1")) == 1 })
		assert.Equal(t, []string{"user1"}, f.dir.TypingUsers("1"))

		conn.Push(`{"event":"typing:stop","data":{"chatId":"1","userId":"user1"}}`)
		eventually(t, func() bool { return len(f.dir.TypingUsers("1")) == 0 })
	})

	t.Run("detach unsubscribes", func(t *testing.T) {
		f.dir.Detach()
		for _, name := range []realtime.EventName{
			realtime.EventMessageReceive, realtime.EventTypingStart,
			realtime.EventTypingStop, realtime.EventChatUpdated,
		} {
			assert.Equal(t, 0, env.Manager.SubscriberCount(name), name)
		}
	})
}
