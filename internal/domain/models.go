package domain

import (
	"fmt"
	"time"
)

// LocalSenderID marks messages composed on this client when no session user is known.
const LocalSenderID = "me"

// Session is the authenticated identity driving the connection.
// It is owned by the auth collaborator; the core only reads it.
type Session struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry. A zero ExpiresAt never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ConnectionState is the lifecycle state of the duplex channel.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// PresenceEntry is a counterparty's live status. The zero value is the fallback
// for users we have heard nothing about.
type PresenceEntry struct {
	IsOnline  bool `json:"is_online"`
	IsViewing bool `json:"is_viewing"`
}

// Message is a single chat message.
type Message struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	SenderID    string   `json:"senderId"`
	ReceiverID  string   `json:"receiverId"`
	Timestamp   string   `json:"timestamp"`
	IsEncrypted bool     `json:"isEncrypted"`
	IsRead      bool     `json:"isRead"`
	Attachments []string `json:"attachments,omitempty"`
}

// Conversation is a 1:1 thread. IsOnline/IsViewing are seed values that live
// presence supersedes once events arrive.
type Conversation struct {
	ID                  string    `json:"id"`
	ParticipantID       string    `json:"participantId"`
	ParticipantName     string    `json:"participantName"`
	ParticipantUsername string    `json:"participantUsername"`
	Messages            []Message `json:"messages"`
	UnreadCount         int       `json:"unreadCount"`
	IsOnline            bool      `json:"isOnline"`
	IsViewing           bool      `json:"isViewing"`
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// HasMessage reports whether a message with the id is already in the thread.
func (c *Conversation) HasMessage(id string) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// Attachment is raw composer input before a preview is derived from it.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// LockDisplayMode controls how locked messages are presented.
type LockDisplayMode string

const (
	LockDisplayText   LockDisplayMode = "text"
	LockDisplayIcon   LockDisplayMode = "icon"
	LockDisplayCustom LockDisplayMode = "custom"
)

// Valid reports whether m is a known display mode.
func (m LockDisplayMode) Valid() bool {
	switch m {
	case LockDisplayText, LockDisplayIcon, LockDisplayCustom:
		return true
	}
	return false
}

// Settings controls how locked messages are shown.
type Settings struct {
	LockDisplayMode LockDisplayMode `json:"lockDisplayMode"`
	CustomLockText  string          `json:"customLockText"`
}

// Validate reports ErrInvalidInput for an unknown display mode.
func (s Settings) Validate() error {
	if !s.LockDisplayMode.Valid() {
		return fmt.Errorf("lock display mode %q: %w", s.LockDisplayMode, ErrInvalidInput)
	}
	return nil
}
