// Package presence keeps the live online/viewing status of counterparties.
package presence

import (
	"sync"

	"go.uber.org/zap"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
	"merrygit_go/internal/realtime"
)

// Store maps user ids to presence. It is written only by the realtime
// handlers installed by Attach. Entries keep their last-known values while
// the connection drops and reconnects; only Detach clears them.
type Store struct {
	log *zap.Logger

	mu      sync.RWMutex
	entries map[string]domain.PresenceEntry

	subMu sync.Mutex
	mgr   *realtime.Manager
	subs  []realtime.Subscription
}

func NewStore(log *zap.Logger) *Store {
	return &Store{
		log:     logger.OrNop(log).Named("presence"),
		entries: make(map[string]domain.PresenceEntry),
	}
}

// Attach installs the four presence handlers on m. Attaching again first
// detaches from the previous manager.
func (s *Store) Attach(m *realtime.Manager) {
	s.Detach()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mgr = m
	s.subs = []realtime.Subscription{
		realtime.On(m, func(e realtime.UserOnline) { s.setOnline(e.UserID, true) }),
		realtime.On(m, func(e realtime.UserOffline) { s.setOnline(e.UserID, false) }),
		realtime.On(m, func(e realtime.UserViewing) { s.setViewing(e.UserID, true) }),
		realtime.On(m, func(e realtime.UserNotViewing) { s.setViewing(e.UserID, false) }),
	}
}

// Detach removes the handlers and forgets every entry.
func (s *Store) Detach() {
	s.subMu.Lock()
	if s.mgr != nil {
		for _, sub := range s.subs {
			s.mgr.Unsubscribe(sub)
		}
	}
	s.mgr = nil
	s.subs = nil
	s.subMu.Unlock()

	s.mu.Lock()
	s.entries = make(map[string]domain.PresenceEntry)
	s.mu.Unlock()
}

// Get returns the presence of userID, or the zero entry when nothing is known.
func (s *Store) Get(userID string) domain.PresenceEntry {
	entry, _ := s.Lookup(userID)
	return entry
}

func (s *Store) Lookup(userID string) (domain.PresenceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[userID]
	return entry, ok
}

func (s *Store) Snapshot() map[string]domain.PresenceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.PresenceEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func (s *Store) setOnline(userID string, online bool) {
	s.update(userID, func(e *domain.PresenceEntry) { e.IsOnline = online })
	s.log.Debug("online", zap.String("user_id", userID), zap.Bool("online", online))
}

func (s *Store) setViewing(userID string, viewing bool) {
	s.update(userID, func(e *domain.PresenceEntry) { e.IsViewing = viewing })
	s.log.Debug("viewing", zap.String("user_id", userID), zap.Bool("viewing", viewing))
}

func (s *Store) update(userID string, fn func(*domain.PresenceEntry)) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	entry := s.entries[userID]
	fn(&entry)
	s.entries[userID] = entry
	s.mu.Unlock()
}
