package chat

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
	"merrygit_go/internal/presence"
	"merrygit_go/internal/realtime"
)

// Directory is the loaded conversation list plus the active conversation.
type Directory struct {
	focus  *Focus
	unlock *Unlocker
	emit   Emitter
	log    *zap.Logger

	mu      sync.RWMutex
	order   []string
	convs   map[string]*domain.Conversation
	active  string
	typing  map[string]map[string]struct{}
	refresh func(chatID string)

	subMu sync.Mutex
	mgr   *realtime.Manager
	subs  []realtime.Subscription
}

func NewDirectory(focus *Focus, unlock *Unlocker, emit Emitter, log *zap.Logger) *Directory {
	return &Directory{
		focus:  focus,
		unlock: unlock,
		emit:   emit,
		log:    logger.OrNop(log).Named("directory"),
		convs:  make(map[string]*domain.Conversation),
		typing: make(map[string]map[string]struct{}),
	}
}

// OnRefresh sets the callback run when the server reports a conversation
// changed or a message arrives for a conversation we have not loaded.
func (d *Directory) OnRefresh(fn func(chatID string)) {
	d.mu.Lock()
	d.refresh = fn
	d.mu.Unlock()
}

// Load replaces the conversation list. The active conversation stays active
// when it is still present.
func (d *Directory) Load(convs []domain.Conversation) {
	d.mu.Lock()
	d.order = make([]string, 0, len(convs))
	d.convs = make(map[string]*domain.Conversation, len(convs))
	for i := range convs {
		c := cloneConversation(convs[i])
		if _, dup := d.convs[c.ID]; dup {
			continue
		}
		d.order = append(d.order, c.ID)
		d.convs[c.ID] = &c
	}
	_, stillThere := d.convs[d.active]
	lost := d.active != "" && !stillThere
	if lost {
		d.active = ""
	}
	d.mu.Unlock()

	if lost {
		d.focus.Clear()
	}
}

func (d *Directory) List() []domain.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, cloneConversation(*d.convs[id]))
	}
	return out
}

func (d *Directory) Get(chatID string) (domain.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.convs[chatID]
	if !ok {
		return domain.Conversation{}, fmt.Errorf("conversation %q: %w", chatID, domain.ErrNotFound)
	}
	return cloneConversation(*c), nil
}

// Append adds msg to the end of a conversation. Message ids are unique within
// a conversation.
func (d *Directory) Append(chatID string, msg domain.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id: %w", domain.ErrInvalidInput)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.convs[chatID]
	if !ok {
		return fmt.Errorf("conversation %q: %w", chatID, domain.ErrNotFound)
	}
	if c.HasMessage(msg.ID) {
		return fmt.Errorf("duplicate message id %q: %w", msg.ID, domain.ErrInvalidInput)
	}
	c.Messages = append(c.Messages, msg)
	return nil
}

// Select opens a conversation: focus moves to it, its latest message is
// unlocked and its unread messages are marked read.
func (d *Directory) Select(chatID string) error {
	d.mu.Lock()
	c, ok := d.convs[chatID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("conversation %q: %w", chatID, domain.ErrNotFound)
	}
	d.active = chatID
	c.UnreadCount = 0
	var receipt *realtime.ReadMessage
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.IsRead || m.SenderID != c.ParticipantID {
			continue
		}
		m.IsRead = true
		receipt = &realtime.ReadMessage{ChatID: chatID, MessageID: m.ID}
	}
	last, hasLast := c.LastMessage()
	d.mu.Unlock()

	d.focus.Set(chatID)
	if hasLast {
		d.unlock.Unlock(last.ID)
	}
	if receipt != nil && d.emit != nil {
		if err := d.emit.Emit(*receipt); err != nil {
			d.log.Debug("read receipt not sent", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return nil
}

// Deselect closes the active conversation.
func (d *Directory) Deselect() {
	d.mu.Lock()
	d.active = ""
	d.mu.Unlock()
	d.focus.Clear()
}

func (d *Directory) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// TypingUsers returns the users currently typing in chatID, sorted.
func (d *Directory) TypingUsers(chatID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set := d.typing[chatID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ActivePresence is the presence of the active conversation's counterparty.
// Live presence wins; the conversation's seed values are the fallback.
func (d *Directory) ActivePresence(store *presence.Store) domain.PresenceEntry {
	d.mu.RLock()
	c, ok := d.convs[d.active]
	var seed domain.PresenceEntry
	var participant string
	if ok {
		seed = domain.PresenceEntry{IsOnline: c.IsOnline, IsViewing: c.IsViewing}
		participant = c.ParticipantID
	}
	d.mu.RUnlock()

	if !ok {
		return domain.PresenceEntry{}
	}
	if store != nil {
		if live, known := store.Lookup(participant); known {
			return live
		}
	}
	return seed
}

// Attach subscribes the directory to message, typing and chat:updated
// events on m.
func (d *Directory) Attach(m *realtime.Manager) {
	d.Detach()

	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.mgr = m
	d.subs = []realtime.Subscription{
		realtime.On(m, d.received),
		realtime.On(m, func(e realtime.TypingStarted) { d.setTyping(e.ChatID, e.UserID, true) }),
		realtime.On(m, func(e realtime.TypingStopped) { d.setTyping(e.ChatID, e.UserID, false) }),
		realtime.On(m, func(e realtime.ChatUpdated) { d.runRefresh(e.ChatID) }),
	}
}

func (d *Directory) Detach() {
	d.subMu.Lock()
	if d.mgr != nil {
		for _, sub := range d.subs {
			d.mgr.Unsubscribe(sub)
		}
	}
	d.mgr = nil
	d.subs = nil
	d.subMu.Unlock()

	d.mu.Lock()
	d.typing = make(map[string]map[string]struct{})
	d.mu.Unlock()
}

// Reset forgets every conversation and the active one.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.order = nil
	d.convs = make(map[string]*domain.Conversation)
	d.active = ""
	d.typing = make(map[string]map[string]struct{})
	d.mu.Unlock()
}

func (d *Directory) received(e realtime.MessageReceived) {
	d.mu.Lock()
	c, ok := d.convs[e.ChatID]
	if !ok {
		d.mu.Unlock()
		d.log.Debug("message for unknown conversation", zap.String("chat_id", e.ChatID))
		d.runRefresh(e.ChatID)
		return
	}
	if c.HasMessage(e.Message.ID) {
		d.mu.Unlock()
		return
	}
	c.Messages = append(c.Messages, e.Message)
	active := d.active == e.ChatID
	if !active {
		c.UnreadCount++
	}
	if set := d.typing[e.ChatID]; set != nil {
		delete(set, e.Message.SenderID)
	}
	d.mu.Unlock()

	if active {
		d.unlock.Unlock(e.Message.ID)
	}
}

func (d *Directory) setTyping(chatID, userID string, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.typing[chatID]
	if on {
		if set == nil {
			set = make(map[string]struct{})
			d.typing[chatID] = set
		}
		set[userID] = struct{}{}
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(d.typing, chatID)
	}
}

func (d *Directory) runRefresh(chatID string) {
	d.mu.RLock()
	fn := d.refresh
	d.mu.RUnlock()
	if fn != nil {
		fn(chatID)
	}
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	msgs := make([]domain.Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Attachments != nil {
			m.Attachments = append([]string(nil), m.Attachments...)
		}
		msgs[i] = m
	}
	c.Messages = msgs
	return c
}
