// Package fakeradio is a memory-backed radio that speaks the configuration
// protocol over an in-process pipe.
package fakeradio

import (
	"bufio"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/frame"
)

// Handler may take over a request. Returning handled=false falls back to the
// default memory behavior.
type Handler func(msg frame.Message) (replies []string, handled bool)

type Radio struct {
	mu         sync.Mutex
	mem        []byte
	busy       int
	busyStatus string
	handler    Handler
	requests   []frame.Message
	writes     int
}

// New starts a radio backed by a copy of mem and returns the client end of
// the link. Both ends are closed when the test finishes.
func New(t testing.TB, mem []byte) (*Radio, net.Conn) {
	t.Helper()
	r := &Radio{mem: append([]byte(nil), mem...), busyStatus: "01"}
	client, server := net.Pipe()
	go r.serve(server)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return r, client
}

// Blank returns n bytes of erased memory.
func Blank(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ascii.Pad
	}
	return out
}

// SetBusy makes the next n status polls report a non-ready status.
func (r *Radio) SetBusy(n int, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = n
	if status != "" {
		r.busyStatus = status
	}
}

func (r *Radio) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Memory returns a copy of the radio memory.
func (r *Radio) Memory() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.mem...)
}

// Requests returns every frame received so far, acknowledgments included.
func (r *Radio) Requests() []frame.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame.Message(nil), r.requests...)
}

// Count returns how many frames with tag were received.
func (r *Radio) Count(tag string) int {
	n := 0
	for _, m := range r.Requests() {
		if m.Tag == tag {
			n++
		}
	}
	return n
}

// Writes returns how many memory writes were applied.
func (r *Radio) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *Radio) serve(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), 64*1024)
	for scanner.Scan() {
		msg, err := frame.Decode(scanner.Text())
		if err != nil {
			continue
		}
		replies := r.handle(msg)
		for _, line := range replies {
			if _, err := io.WriteString(conn, line); err != nil {
				return
			}
		}
	}
}

func (r *Radio) handle(msg frame.Message) []string {
	r.mu.Lock()
	r.requests = append(r.requests, msg)
	h := r.handler
	r.mu.Unlock()

	if h != nil {
		if replies, ok := h(msg); ok {
			return replies
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch msg.Tag {
	case frame.TagStatusRequest:
		status := frame.StatusReady
		if r.busy > 0 {
			r.busy--
			status = r.busyStatus
		}
		return []string{frame.Encode(frame.TagAck), frame.Encode(frame.TagStatus, status)}
	case frame.TagReadRequest:
		offset, length, ok := r.span(msg)
		if !ok {
			return nil
		}
		payload := ascii.HexBytes(r.mem[offset : offset+length])
		return []string{
			frame.Encode(frame.TagAck),
			frame.Encode(frame.TagData, msg.Arg(0), msg.Arg(1), payload),
		}
	case frame.TagWriteRequest:
		offset, length, ok := r.span(msg)
		if !ok {
			return nil
		}
		data, err := ascii.Unhex(msg.Arg(2))
		if err != nil || len(data) != length {
			return nil
		}
		copy(r.mem[offset:], data)
		r.writes++
		return []string{frame.Encode(frame.TagAck)}
	default:
		return nil
	}
}

func (r *Radio) span(msg frame.Message) (int, int, bool) {
	offset, err := ascii.ParseHex(msg.Arg(0))
	if err != nil {
		return 0, 0, false
	}
	length, err := ascii.ParseHex(msg.Arg(1))
	if err != nil {
		return 0, 0, false
	}
	if offset+length > len(r.mem) {
		return 0, 0, false
	}
	return offset, length, true
}
