// Package chat holds the local conversation state: viewing focus, the
// unlocked message, the conversation list and outgoing message construction.
package chat

import (
	"sync"

	"go.uber.org/zap"

	"merrygit_go/internal/logger"
	"merrygit_go/internal/realtime"
)

// Emitter sends outbound realtime events. *realtime.Manager implements it.
type Emitter interface {
	Emit(ev realtime.OutboundEvent) error
}

// Focus tracks the conversation the local user has open and is the only
// sender of chat:viewing and chat:not-viewing.
type Focus struct {
	emit Emitter
	log  *zap.Logger

	mu      sync.Mutex
	current string
}

func NewFocus(emit Emitter, log *zap.Logger) *Focus {
	return &Focus{emit: emit, log: logger.OrNop(log).Named("focus")}
}

// Set moves focus to chatID; an empty id means no conversation. Leaving the
// old conversation is signalled before entering the new one. Setting the
// current value again sends nothing.
func (f *Focus) Set(chatID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if chatID == f.current {
		return
	}
	prev := f.current
	f.current = chatID

	if prev != "" {
		f.send(realtime.StopViewingChat{ChatID: prev})
	}
	if chatID != "" {
		f.send(realtime.ViewChat{ChatID: chatID})
	}
}

func (f *Focus) Clear() { f.Set("") }

func (f *Focus) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Focus) send(ev realtime.OutboundEvent) {
	if err := f.emit.Emit(ev); err != nil {
		f.log.Debug("focus signal not sent", zap.String("event", string(ev.EventName())), zap.Error(err))
	}
}
