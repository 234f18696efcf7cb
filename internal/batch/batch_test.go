package batch

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/danmuck/hxctl/internal/testutil/testlog"
	"github.com/danmuck/hxctl/internal/transport"
)

type request struct {
	offset int
	length int
}

type recordingMemory struct {
	img    *transport.Image
	reads  []request
	writes []request
	fail   error
}

func newRecordingMemory(n int) *recordingMemory {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return &recordingMemory{img: transport.NewImage(data)}
}

func (m *recordingMemory) ReadMemory(ctx context.Context, offset, length int) ([]byte, error) {
	m.reads = append(m.reads, request{offset, length})
	if m.fail != nil {
		return nil, m.fail
	}
	return m.img.ReadMemory(ctx, offset, length)
}

func (m *recordingMemory) WriteMemory(ctx context.Context, offset int, data []byte) error {
	m.writes = append(m.writes, request{offset, len(data)})
	return m.img.WriteMemory(ctx, offset, data)
}

func TestReaderMergesOverlappingRanges(t *testing.T) {
	testlog.Start(t)
	mem := newRecordingMemory(0x100)
	r := NewReader(0xff)
	if err := r.AddRange("b", 0x18, 0x30); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := r.AddRange("a", 0x10, 0x20); err != nil {
		t.Fatalf("add a: %v", err)
	}

	res, err := r.Execute(context.Background(), mem)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(mem.reads) != 1 || mem.reads[0] != (request{0x10, 0x20}) {
		t.Fatalf("expected one merged read, got %+v", mem.reads)
	}
	a, _ := res.Get("a")
	b, _ := res.Get("b")
	if a[0] != 0x10 || len(a) != 0x10 || b[0] != 0x18 || len(b) != 0x18 {
		t.Fatalf("unexpected slices a=% x b=% x", a, b)
	}
}

func TestReaderMergesTouchingAndKeepsGaps(t *testing.T) {
	testlog.Start(t)
	r := NewReader(0)
	_ = r.AddRange("one", 0x00, 0x10)
	_ = r.AddRange("two", 0x10, 0x20)
	_ = r.AddRange("far", 0x40, 0x48)
	spans := r.Spans()
	if len(spans) != 2 || spans[0].Start != 0 || spans[0].End != 0x20 || spans[1].Start != 0x40 {
		t.Fatalf("unexpected spans %+v", spans)
	}
}

func TestReaderSliceIndependentOfOrder(t *testing.T) {
	testlog.Start(t)
	orders := [][]Range{
		{{"x", 4, 12}, {"y", 8, 20}, {"z", 0, 6}},
		{{"z", 0, 6}, {"y", 8, 20}, {"x", 4, 12}},
	}
	var first Results
	for i, order := range orders {
		r := NewReader(4)
		for _, rg := range order {
			if err := r.AddRange(rg.Name, rg.Start, rg.End); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
		res, err := r.Execute(context.Background(), newRecordingMemory(0x20))
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if i == 0 {
			first = res
			continue
		}
		for name, b := range first {
			if !bytes.Equal(res[name], b) {
				t.Fatalf("range %s differs across orders", name)
			}
		}
	}
	if x := first["x"]; len(x) != 8 || x[0] != 4 || x[7] != 11 {
		t.Fatalf("unexpected x % x", x)
	}
}

func TestReaderChunksLongSpans(t *testing.T) {
	testlog.Start(t)
	mem := newRecordingMemory(0x200)
	r := NewReader(DefaultChunkSize)
	_ = r.AddRange("table", 0x00, 0x90)
	res, err := r.Execute(context.Background(), mem)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []request{{0x00, 0x40}, {0x40, 0x40}, {0x80, 0x10}}
	if len(mem.reads) != len(want) {
		t.Fatalf("unexpected reads %+v", mem.reads)
	}
	for i := range want {
		if mem.reads[i] != want[i] {
			t.Fatalf("read %d got %+v want %+v", i, mem.reads[i], want[i])
		}
	}
	if got := res["table"]; len(got) != 0x90 || got[0x8f] != 0x8f {
		t.Fatalf("unexpected table bytes")
	}
}

func TestReaderOutOfRangeLeavesNamesAbsent(t *testing.T) {
	testlog.Start(t)
	mem := newRecordingMemory(0x100)
	r := NewReader(0)
	_ = r.AddRange("inside", 0x10, 0x20)
	_ = r.AddRange("beyond", 0xf0, 0x110)

	res, err := r.Execute(context.Background(), mem)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := res.Get("beyond"); ok {
		t.Fatalf("out-of-range name must be absent")
	}
	if _, ok := res.Get("inside"); !ok {
		t.Fatalf("in-range name must be present")
	}
}

func TestReaderPropagatesTransportErrors(t *testing.T) {
	testlog.Start(t)
	mem := newRecordingMemory(0x100)
	mem.fail = transport.ErrTimeout
	r := NewReader(0)
	_ = r.AddRange("a", 0, 4)
	if _, err := r.Execute(context.Background(), mem); !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestReaderRejectsBadRanges(t *testing.T) {
	testlog.Start(t)
	r := NewReader(0)
	if err := r.AddRange("a", 0, 4); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddRange("a", 8, 12); !errors.Is(err, ErrDuplicateRange) {
		t.Fatalf("expected ErrDuplicateRange, got %v", err)
	}
	if err := r.AddRange("b", 4, 4); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	r.Reset()
	if len(r.Ranges()) != 0 {
		t.Fatalf("reset must clear ranges")
	}
	if err := r.AddRange("a", 0, 4); err != nil {
		t.Fatalf("name must be reusable after reset: %v", err)
	}
}

func TestWriterOrdersAndChunks(t *testing.T) {
	testlog.Start(t)
	mem := newRecordingMemory(0x200)
	w := NewWriter(0x40)
	if err := w.Prepare("late", 0x100, bytes.Repeat([]byte{0xaa}, 0x50)); err != nil {
		t.Fatalf("prepare late: %v", err)
	}
	if err := w.Prepare("early", 0x10, []byte{1, 2, 3}); err != nil {
		t.Fatalf("prepare early: %v", err)
	}
	if w.Len() != 2 || w.Bytes() != 0x53 {
		t.Fatalf("unexpected queue len=%d bytes=%d", w.Len(), w.Bytes())
	}
	if err := w.Execute(context.Background(), mem); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []request{{0x10, 3}, {0x100, 0x40}, {0x140, 0x10}}
	if len(mem.writes) != len(want) {
		t.Fatalf("unexpected writes %+v", mem.writes)
	}
	for i := range want {
		if mem.writes[i] != want[i] {
			t.Fatalf("write %d got %+v want %+v", i, mem.writes[i], want[i])
		}
	}
	out := mem.img.Bytes()
	if out[0x11] != 2 || out[0x14f] != 0xaa || out[0x150] != 0x50 {
		t.Fatalf("unexpected image contents")
	}
}

func TestWriterRejectsOverlap(t *testing.T) {
	testlog.Start(t)
	w := NewWriter(0)
	_ = w.Prepare("a", 0x10, make([]byte, 0x10))
	if err := w.Prepare("b", 0x1f, []byte{0}); !errors.Is(err, ErrOverlappingWrite) {
		t.Fatalf("expected ErrOverlappingWrite, got %v", err)
	}
	if err := w.Prepare("c", 0x20, []byte{0}); err != nil {
		t.Fatalf("touching blocks are allowed: %v", err)
	}
}
