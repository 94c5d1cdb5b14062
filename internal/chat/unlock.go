package chat

import (
	"sync"

	"merrygit_go/internal/domain"
)

const (
	lockedText = "Locked"
	lockedIcon = "🔒"
)

// Unlocker holds the single revealed message id. It is one value across all
// conversations, so switching threads keeps only the latest reveal.
type Unlocker struct {
	mu sync.RWMutex
	id string
}

func NewUnlocker() *Unlocker { return &Unlocker{} }

// Unlock reveals id and locks whatever was revealed before. Unknown ids are
// accepted.
func (u *Unlocker) Unlock(id string) {
	u.mu.Lock()
	u.id = id
	u.mu.Unlock()
}

func (u *Unlocker) Current() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.id
}

func (u *Unlocker) IsUnlocked(id string) bool {
	return id != "" && u.Current() == id
}

func (u *Unlocker) Reset() { u.Unlock("") }

// RenderedMessage is a message as the UI should display it.
type RenderedMessage struct {
	ID          string   `json:"id"`
	SenderID    string   `json:"senderId"`
	Timestamp   string   `json:"timestamp"`
	Locked      bool     `json:"locked"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// Render shows msg in cleartext only when it is the unlocked message.
// Otherwise content is replaced by the placeholder for mode, and
// attachments are withheld.
func (u *Unlocker) Render(msg domain.Message, mode domain.LockDisplayMode, customText string) RenderedMessage {
	out := RenderedMessage{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Timestamp: msg.Timestamp,
	}
	if u.IsUnlocked(msg.ID) {
		out.Content = msg.Content
		out.Attachments = msg.Attachments
		return out
	}

	out.Locked = true
	switch mode {
	case domain.LockDisplayIcon:
		out.Content = lockedIcon
	case domain.LockDisplayCustom:
		out.Content = customText
	default:
		out.Content = lockedText
	}
	return out
}
