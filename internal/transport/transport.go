// Package transport owns the memory access primitives of a radio.
//
// Ownership boundary:
// - readiness handshake
// - memory read/write exchanges
// - live serial link and static memory image variants
//
// Exactly one exchange is outstanding on a link at any time. Every wait for
// an incoming frame is raced against a timer; an abandoned wait is not
// retracted, so stale frames are discarded before each new operation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// MaxTransfer is the largest payload one exchange can carry; the length
	// field of a request is two hex digits.
	MaxTransfer = 0xff
	// AddressSpace is the size of the 4-hex-digit offset space.
	AddressSpace = 0x10000
)

var (
	ErrTimeout         = errors.New("transport: timeout")
	ErrUnexpectedReply = errors.New("transport: unexpected reply")
	ErrDeviceNotReady  = errors.New("transport: device not ready")
	ErrOutOfRange      = errors.New("transport: address out of range")
	ErrRequestTooLarge = errors.New("transport: request too large")
	ErrLinkClosed      = errors.New("transport: link closed")
	ErrNotCPMode       = errors.New("transport: device is not in CP mode")
)

// Transport is the contract shared by the live link and the memory image.
type Transport interface {
	EnsureReady(ctx context.Context) error
	ReadMemory(ctx context.Context, offset, length int) ([]byte, error)
	WriteMemory(ctx context.Context, offset int, data []byte) error
}

// Config defines link timing.
type Config struct {
	// ReadyTimeout bounds a whole readiness handshake. It is the only bound
	// on the polling loop.
	ReadyTimeout time.Duration
	// StepTimeout bounds each individual send or receive. Zero disables it.
	StepTimeout time.Duration
}

// DefaultConfig returns the timing used by the vendor tooling.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout: time.Second,
		StepTimeout:  2 * time.Second,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = def.ReadyTimeout
	}
	if c.StepTimeout < 0 {
		c.StepTimeout = 0
	}
	return c
}

func checkRange(offset, length, limit int) error {
	if offset < 0 || length < 0 || offset+length > limit {
		return fmt.Errorf("%w: [%#04x,%#04x) limit %#x", ErrOutOfRange, offset, offset+length, limit)
	}
	return nil
}

func checkTransfer(offset, length int) error {
	if length <= 0 || length > MaxTransfer {
		return fmt.Errorf("%w: %d bytes at %#04x (max %d)", ErrRequestTooLarge, length, offset, MaxTransfer)
	}
	return checkRange(offset, length, AddressSpace)
}

// outcome maps an operation error onto a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeviceNotReady):
		return "not_ready"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnexpectedReply):
		return "unexpected_reply"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
