package chat

import (
	"fmt"
	"strings"
	"sync"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/preview"
)

// Composer holds the attachments of the message being written. Each
// attachment gets one preview when attached; removing it or clearing the
// composer releases the preview.
type Composer struct {
	reg *preview.Registry

	mu      sync.Mutex
	pending []*preview.Handle
}

func NewComposer(reg *preview.Registry) *Composer {
	return &Composer{reg: reg}
}

// Attach accepts images only.
func (c *Composer) Attach(a domain.Attachment) (*preview.Handle, error) {
	if !strings.HasPrefix(a.ContentType, "image/") {
		return nil, fmt.Errorf("attachment %q is %q, not an image: %w", a.Name, a.ContentType, domain.ErrInvalidInput)
	}
	h := c.reg.Acquire(a)

	c.mu.Lock()
	c.pending = append(c.pending, h)
	c.mu.Unlock()
	return h, nil
}

// Remove releases the attachment at index i.
func (c *Composer) Remove(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.pending) {
		c.mu.Unlock()
		return fmt.Errorf("attachment %d: %w", i, domain.ErrNotFound)
	}
	h := c.pending[i]
	c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
	c.mu.Unlock()

	h.Release()
	return nil
}

// Clear releases every pending attachment.
func (c *Composer) Clear() {
	for _, h := range c.take() {
		h.Release()
	}
}

func (c *Composer) Pending() []*preview.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*preview.Handle(nil), c.pending...)
}

// Submit sends content with the pending attachments. On success the previews
// belong to the sent message and the composer is empty; on failure nothing
// changes.
func (c *Composer) Submit(d *Dispatcher, chatID, content string) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := d.Send(chatID, content, c.pending)
	if err != nil {
		return domain.Message{}, err
	}
	c.pending = nil
	return msg, nil
}

func (c *Composer) take() []*preview.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}
