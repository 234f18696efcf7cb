package transport

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/hxctl/internal/observability"
)

const imageLabel = "image"

// Image serves memory operations from an in-memory copy of a radio's memory.
type Image struct {
	mu    sync.RWMutex
	data  []byte
	dirty bool
}

// NewImage copies data into a new image.
func NewImage(data []byte) *Image {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Image{data: buf}
}

// EnsureReady always succeeds; an image has no handshake.
func (m *Image) EnsureReady(ctx context.Context) error {
	return ctx.Err()
}

func (m *Image) ReadMemory(ctx context.Context, offset, length int) ([]byte, error) {
	start := time.Now()
	data, err := m.read(ctx, offset, length)
	observability.RecordLinkOperation(imageLabel, "read", outcome(err), time.Since(start))
	return data, err
}

func (m *Image) read(ctx context.Context, offset, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkRange(offset, length, len(m.data)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

func (m *Image) WriteMemory(ctx context.Context, offset int, data []byte) error {
	start := time.Now()
	err := m.write(ctx, offset, data)
	observability.RecordLinkOperation(imageLabel, "write", outcome(err), time.Since(start))
	return err
}

func (m *Image) write(ctx context.Context, offset int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkRange(offset, len(data), len(m.data)); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	m.dirty = true
	return nil
}

// Bytes returns a copy of the current image for saving.
func (m *Image) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Dirty reports whether any write landed since the image was created.
func (m *Image) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

func (m *Image) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
