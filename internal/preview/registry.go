// Package preview hands out local preview references for composer
// attachments. Every reference is released exactly once.
package preview

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
)

// Handle is a live preview of one attachment.
type Handle struct {
	ID          string
	URL         string
	Name        string
	ContentType string

	reg  *Registry
	once sync.Once
}

// Release frees the preview. Calls after the first are no-ops.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() { h.reg.drop(h.ID) })
}

type entry struct {
	handle *Handle
	data   []byte
}

type Registry struct {
	log *zap.Logger

	mu   sync.RWMutex
	live map[string]entry
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:  logger.OrNop(log).Named("preview"),
		live: make(map[string]entry),
	}
}

// Acquire derives a preview from a. The bytes are copied.
func (r *Registry) Acquire(a domain.Attachment) *Handle {
	id := uuid.NewString()
	h := &Handle{
		ID:          id,
		URL:         "blob:" + id,
		Name:        a.Name,
		ContentType: a.ContentType,
		reg:         r,
	}
	data := append([]byte(nil), a.Data...)

	r.mu.Lock()
	r.live[id] = entry{handle: h, data: data}
	r.mu.Unlock()

	r.log.Debug("acquired", zap.String("id", id), zap.String("name", a.Name))
	return h
}

// Get returns the handle and bytes of a live preview.
func (r *Registry) Get(id string) (*Handle, []byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.live[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return e.handle, e.data, nil
}

// Release frees the preview with the given id, if it is still live.
func (r *Registry) Release(id string) {
	r.mu.RLock()
	e, ok := r.live[id]
	r.mu.RUnlock()
	if ok {
		e.handle.Release()
	}
}

// ReleaseAll frees every live preview.
func (r *Registry) ReleaseAll() {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.live))
	for _, e := range r.live {
		handles = append(handles, e.handle)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		h.Release()
	}
}

func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

func (r *Registry) drop(id string) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
	r.log.Debug("released", zap.String("id", id))
}
