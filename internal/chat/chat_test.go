package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/realtime"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []realtime.OutboundEvent
	err    error
}

func (r *recordingEmitter) Emit(ev realtime.OutboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

// viewing returns only the focus signals, in emission order.
func (r *recordingEmitter) viewing() []realtime.OutboundEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.OutboundEvent
	for _, ev := range r.events {
		switch ev.(type) {
		case realtime.ViewChat, realtime.StopViewingChat:
			out = append(out, ev)
		}
	}
	return out
}

func msg(id, sender, receiver string, read bool) domain.Message {
	return domain.Message{
		ID:          id,
		Content:     "content of " + id,
		SenderID:    sender,
		ReceiverID:  receiver,
		Timestamp:   "10:30",
		IsEncrypted: true,
		IsRead:      read,
	}
}

func fixtureConversations() []domain.Conversation {
	return []domain.Conversation{
		{
			ID: "1", ParticipantID: "user1", ParticipantName: "Alice Johnson", ParticipantUsername: "alice",
			UnreadCount: 2, IsOnline: true, IsViewing: true,
			Messages: []domain.Message{
				msg("m1", "user1", "me", true),
				msg("m2", "me", "user1", true),
				msg("m3", "user1", "me", false),
				msg("m4", "me", "user1", true),
				msg("m5", "user1", "me", false),
			},
		},
		{
			ID: "2", ParticipantID: "user2", ParticipantName: "Bob Smith", ParticipantUsername: "bobsmith",
			IsOnline: true,
			Messages: []domain.Message{
				msg("m6", "user2", "me", true),
				msg("m7", "me", "user2", true),
			},
		},
		{
			ID: "3", ParticipantID: "user3", ParticipantName: "Carol Davis", ParticipantUsername: "carol_d",
			UnreadCount: 5,
		},
	}
}

type fixture struct {
	emit   *recordingEmitter
	focus  *Focus
	unlock *Unlocker
	dir    *Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{emit: &recordingEmitter{}, unlock: NewUnlocker()}
	f.focus = NewFocus(f.emit, nil)
	f.dir = NewDirectory(f.focus, f.unlock, f.emit, nil)
	f.dir.Load(fixtureConversations())
	return f
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, time.Second, time.Millisecond)
}
