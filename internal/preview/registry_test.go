package preview

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merrygit_go/internal/domain"
)

func png(name string) domain.Attachment {
	return domain.Attachment{Name: name, ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

func TestRegistry_Acquire(t *testing.T) {
	r := NewRegistry(nil)

	a := r.Acquire(png("a.png"))
	b := r.Acquire(png("b.png"))

	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(a.URL, "blob:"))
	assert.Equal(t, "a.png", a.Name)
	assert.Equal(t, 2, r.Live())

	h, data, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, h)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestRegistry_ReleaseOnce(t *testing.T) {
	r := NewRegistry(nil)
	h := r.Acquire(png("a.png"))
	other := r.Acquire(png("b.png"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()
	r.Release(h.ID)

	assert.Equal(t, 1, r.Live())
	_, _, err := r.Get(h.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = r.Get(other.ID)
	assert.NoError(t, err)
}

func TestRegistry_ReleaseAll(t *testing.T) {
	r := NewRegistry(nil)
	handles := []*Handle{r.Acquire(png("a.png")), r.Acquire(png("b.png")), r.Acquire(png("c.png"))}

	r.ReleaseAll()
	assert.Equal(t, 0, r.Live())

	// releasing an already released handle stays a no-op
	handles[0].Release()
	r.Release("missing")
	assert.Equal(t, 0, r.Live())
}

func TestRegistry_CopiesBytes(t *testing.T) {
	r := NewRegistry(nil)
	a := png("a.png")
	h := r.Acquire(a)
	a.Data[0] = 0

	_, data, err := r.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(0x89), data[0])
}
