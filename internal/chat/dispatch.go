package chat

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/preview"
)

// TimestampLayout is the display timestamp of locally composed messages.
const TimestampLayout = "15:04"

// idGenerator yields "m<unix-ms>" ids that strictly increase even when the
// clock stalls or steps back.
type idGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (g *idGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return "m" + strconv.FormatInt(ms, 10)
}

// Dispatcher builds outgoing messages and applies them locally. It does not
// transmit them.
type Dispatcher struct {
	dir    *Directory
	unlock *Unlocker
	ids    *idGenerator
	now    func() time.Time

	mu     sync.RWMutex
	sender string
}

func NewDispatcher(dir *Directory, unlock *Unlocker) *Dispatcher {
	return newDispatcherAt(dir, unlock, time.Now)
}

func newDispatcherAt(dir *Directory, unlock *Unlocker, now func() time.Time) *Dispatcher {
	return &Dispatcher{
		dir:    dir,
		unlock: unlock,
		ids:    &idGenerator{now: now},
		now:    now,
		sender: domain.LocalSenderID,
	}
}

// SetSender sets the sender id of new messages. Empty restores the local
// placeholder id.
func (d *Dispatcher) SetSender(userID string) {
	if userID == "" {
		userID = domain.LocalSenderID
	}
	d.mu.Lock()
	d.sender = userID
	d.mu.Unlock()
}

func (d *Dispatcher) Sender() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sender
}

// Send appends a new message to chatID and unlocks it. Attachments are the
// URLs of previews, in order, skipping nil handles; the previews stay owned
// by the caller.
func (d *Dispatcher) Send(chatID, content string, previews []*preview.Handle) (domain.Message, error) {
	urls := make([]string, 0, len(previews))
	for _, p := range previews {
		if p != nil {
			urls = append(urls, p.URL)
		}
	}
	if strings.TrimSpace(content) == "" && len(urls) == 0 {
		return domain.Message{}, fmt.Errorf("empty message: %w", domain.ErrInvalidInput)
	}
	conv, err := d.dir.Get(chatID)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:          d.ids.next(),
		Content:     content,
		SenderID:    d.Sender(),
		ReceiverID:  conv.ParticipantID,
		Timestamp:   d.now().Format(TimestampLayout),
		IsEncrypted: true,
		IsRead:      false,
	}
	if len(urls) > 0 {
		msg.Attachments = urls
	}

	if err := d.dir.Append(chatID, msg); err != nil {
		return domain.Message{}, err
	}
	d.unlock.Unlock(msg.ID)
	return msg, nil
}
