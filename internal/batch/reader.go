// Package batch coalesces named memory ranges into the fewest physical
// transfers.
//
// A Reader collects ranges from every config module, merges the ones that
// overlap or touch, reads each merged span once and hands every module back
// exactly the bytes it asked for. A Writer does the reverse for encoded
// module images.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/hxctl/internal/transport"
	"github.com/rs/zerolog/log"
)

// DefaultChunkSize keeps every request well inside the 2-hex-digit length field.
const DefaultChunkSize = 0x40

var (
	ErrDuplicateRange   = errors.New("batch: duplicate range name")
	ErrInvalidRange     = errors.New("batch: invalid range")
	ErrOverlappingWrite = errors.New("batch: overlapping write")
)

// MemoryReader is the read half of a transport.
type MemoryReader interface {
	ReadMemory(ctx context.Context, offset, length int) ([]byte, error)
}

// MemoryWriter is the write half of a transport.
type MemoryWriter interface {
	WriteMemory(ctx context.Context, offset int, data []byte) error
}

// Range is one named half-open address interval.
type Range struct {
	Name  string
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

// Results maps a range name to its bytes. Names whose span could not be read
// are absent.
type Results map[string][]byte

// Get returns the bytes of name and whether they were read.
func (r Results) Get(name string) ([]byte, bool) {
	b, ok := r[name]
	return b, ok
}

// span is one merged physical read.
type span struct {
	start  int
	end    int
	ranges []Range
}

// Reader accumulates ranges for one read cycle.
type Reader struct {
	chunkSize int
	ranges    []Range
	names     map[string]struct{}
}

// NewReader returns a Reader issuing requests of at most chunkSize bytes. A
// non-positive chunkSize selects DefaultChunkSize.
func NewReader(chunkSize int) *Reader {
	if chunkSize <= 0 || chunkSize > transport.MaxTransfer {
		chunkSize = DefaultChunkSize
	}
	return &Reader{chunkSize: chunkSize, names: make(map[string]struct{})}
}

// AddRange registers [start, end) under name.
func (r *Reader) AddRange(name string, start, end int) error {
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateRange, name)
	}
	if name == "" || start < 0 || end <= start {
		return fmt.Errorf("%w: %q [%#04x,%#04x)", ErrInvalidRange, name, start, end)
	}
	r.names[name] = struct{}{}
	r.ranges = append(r.ranges, Range{Name: name, Start: start, End: end})
	return nil
}

// Ranges returns the registered ranges in registration order.
func (r *Reader) Ranges() []Range {
	return append([]Range(nil), r.ranges...)
}

// Reset clears every registered range so the Reader can serve a new cycle.
func (r *Reader) Reset() {
	r.ranges = nil
	r.names = make(map[string]struct{})
}

// Spans returns the merged physical reads as ranges named by their position.
func (r *Reader) Spans() []Range {
	spans := r.merge()
	out := make([]Range, 0, len(spans))
	for i, s := range spans {
		out = append(out, Range{Name: fmt.Sprintf("span%d", i), Start: s.start, End: s.end})
	}
	return out
}

func (r *Reader) merge() []span {
	sorted := append([]Range(nil), r.ranges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var spans []span
	for _, rg := range sorted {
		if n := len(spans); n > 0 && rg.Start <= spans[n-1].end {
			last := &spans[n-1]
			if rg.End > last.end {
				last.end = rg.End
			}
			last.ranges = append(last.ranges, rg)
			continue
		}
		spans = append(spans, span{start: rg.Start, end: rg.End, ranges: []Range{rg}})
	}
	return spans
}

// Execute reads every merged span once and slices out each registered range.
// A span the transport rejects with transport.ErrOutOfRange leaves its names
// absent; any other failure aborts the cycle.
func (r *Reader) Execute(ctx context.Context, mem MemoryReader) (Results, error) {
	results := make(Results, len(r.ranges))
	for _, s := range r.merge() {
		buf, err := r.readSpan(ctx, mem, s)
		if errors.Is(err, transport.ErrOutOfRange) {
			log.Warn().
				Int("start", s.start).
				Int("end", s.end).
				Int("ranges", len(s.ranges)).
				Err(err).
				Msg("batch.Reader span unavailable")
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, rg := range s.ranges {
			out := make([]byte, rg.Len())
			copy(out, buf[rg.Start-s.start:rg.End-s.start])
			results[rg.Name] = out
		}
	}
	return results, nil
}

func (r *Reader) readSpan(ctx context.Context, mem MemoryReader, s span) ([]byte, error) {
	buf := make([]byte, 0, s.end-s.start)
	for addr := s.start; addr < s.end; addr += r.chunkSize {
		n := min(r.chunkSize, s.end-addr)
		chunk, err := mem.ReadMemory(ctx, addr, n)
		if err != nil {
			return nil, fmt.Errorf("read %#04x+%d: %w", addr, n, err)
		}
		if len(chunk) != n {
			return nil, fmt.Errorf("%w: read %#04x returned %d bytes, want %d", transport.ErrUnexpectedReply, addr, len(chunk), n)
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}
