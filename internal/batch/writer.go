package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/danmuck/hxctl/internal/transport"
)

type block struct {
	name  string
	start int
	data  []byte
}

func (b block) end() int { return b.start + len(b.data) }

// Writer accumulates encoded memory blocks and writes them in address order.
type Writer struct {
	chunkSize int
	blocks    []block
}

func NewWriter(chunkSize int) *Writer {
	if chunkSize <= 0 || chunkSize > transport.MaxTransfer {
		chunkSize = DefaultChunkSize
	}
	return &Writer{chunkSize: chunkSize}
}

// Prepare queues data for start under name. Blocks may touch but not overlap.
func (w *Writer) Prepare(name string, start int, data []byte) error {
	if name == "" || start < 0 || len(data) == 0 {
		return fmt.Errorf("%w: %q at %#04x (%d bytes)", ErrInvalidRange, name, start, len(data))
	}
	next := block{name: name, start: start, data: append([]byte(nil), data...)}
	for _, b := range w.blocks {
		if b.name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateRange, name)
		}
		if next.start < b.end() && b.start < next.end() {
			return fmt.Errorf("%w: %q [%#04x,%#04x) and %q [%#04x,%#04x)",
				ErrOverlappingWrite, name, next.start, next.end(), b.name, b.start, b.end())
		}
	}
	w.blocks = append(w.blocks, next)
	return nil
}

// Len returns the number of queued blocks.
func (w *Writer) Len() int { return len(w.blocks) }

// Bytes returns the total number of queued bytes.
func (w *Writer) Bytes() int {
	n := 0
	for _, b := range w.blocks {
		n += len(b.data)
	}
	return n
}

func (w *Writer) Reset() { w.blocks = nil }

// Results returns the queued bytes keyed by block name.
func (w *Writer) Results() Results {
	out := make(Results, len(w.blocks))
	for _, b := range w.blocks {
		out[b.name] = append([]byte(nil), b.data...)
	}
	return out
}

// Execute writes every block in ascending address order. The first failure
// stops the cycle; blocks already written stay written.
func (w *Writer) Execute(ctx context.Context, mem MemoryWriter) error {
	sorted := append([]block(nil), w.blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	for _, b := range sorted {
		for off := 0; off < len(b.data); off += w.chunkSize {
			end := min(off+w.chunkSize, len(b.data))
			if err := mem.WriteMemory(ctx, b.start+off, b.data[off:end]); err != nil {
				return fmt.Errorf("write %s at %#04x: %w", b.name, b.start+off, err)
			}
		}
	}
	return nil
}
