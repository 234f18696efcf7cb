package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/hxctl/internal/observability"
	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

const liveLabel = "live"

// Live drives a radio over a line-oriented byte stream.
type Live struct {
	cfg Config
	rw  io.ReadWriter

	// op serializes exchanges; wmu serializes raw writes, which may outlive
	// the exchange that started them when a step times out.
	op  sync.Mutex
	wmu sync.Mutex

	lines chan string
	// eof is closed when the reader stops; readErr holds the cause.
	eof     chan struct{}
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewLive starts reading frames from rw. The caller keeps ownership of rw
// and must close it after Close to release the reader.
func NewLive(rw io.ReadWriter, cfg Config) *Live {
	l := &Live{
		cfg:    cfg.WithDefaults(),
		rw:     rw,
		lines:  make(chan string, 64),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Live) readLoop() {
	defer close(l.eof)
	scanner := bufio.NewScanner(l.rw)
	scanner.Buffer(make([]byte, 0, 1024), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		log.Trace().Str("dir", "rx").Str("frame", line).Msg("transport.Live")
		select {
		case l.lines <- line:
		case <-l.closed:
			l.readErr = ErrLinkClosed
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	l.readErr = fmt.Errorf("%w: %w", ErrLinkClosed, err)
}

// Close stops delivering frames. Pending operations fail with ErrLinkClosed.
func (l *Live) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// drain discards frames left behind by abandoned waits.
func (l *Live) drain() {
	for {
		select {
		case line := <-l.lines:
			log.Debug().Str("frame", line).Msg("transport.Live discarded stale frame")
		default:
			return
		}
	}
}

func (l *Live) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.cfg.StepTimeout)
}

func (l *Live) send(ctx context.Context, tag string, args ...string) error {
	line := frame.Encode(tag, args...)
	stepCtx, cancel := l.stepContext(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		l.wmu.Lock()
		defer l.wmu.Unlock()
		_, err := io.WriteString(l.rw, line)
		done <- err
	}()

	log.Trace().Str("dir", "tx").Str("frame", line).Msg("transport.Live")
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrLinkClosed, tag, err)
		}
		return nil
	case <-l.closed:
		return ErrLinkClosed
	case <-stepCtx.Done():
		return l.stepErr(ctx, stepCtx, "send "+tag)
	}
}

func (l *Live) receive(ctx context.Context) (frame.Message, error) {
	stepCtx, cancel := l.stepContext(ctx)
	defer cancel()

	for {
		var line string
		select {
		case line = <-l.lines:
		case <-l.eof:
			// frames read before the link ended are still delivered
			select {
			case line = <-l.lines:
			default:
				return frame.Message{}, l.readErr
			}
		case <-l.closed:
			return frame.Message{}, ErrLinkClosed
		case <-stepCtx.Done():
			return frame.Message{}, l.stepErr(ctx, stepCtx, "receive")
		}
		if line == "" {
			continue
		}
		msg, err := frame.Decode(line)
		if err != nil {
			return frame.Message{}, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
		}
		return msg, nil
	}
}

func (l *Live) expect(ctx context.Context, tag string) (frame.Message, error) {
	msg, err := l.receive(ctx)
	if err != nil {
		return frame.Message{}, err
	}
	if msg.Tag != tag {
		return frame.Message{}, fmt.Errorf("%w: want %s, got %q", ErrUnexpectedReply, tag, msg.String())
	}
	return msg, nil
}

// stepErr reports parent cancellation as-is and a step expiry as ErrTimeout.
func (l *Live) stepErr(parent, step context.Context, what string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s after %s", ErrTimeout, what, l.cfg.StepTimeout)
}

// EnsureReady polls the radio status until it reports ready or ReadyTimeout
// elapses. Every status reply is acknowledged.
func (l *Live) EnsureReady(ctx context.Context) error {
	l.op.Lock()
	defer l.op.Unlock()

	start := time.Now()
	err := l.ensureReady(ctx)
	observability.RecordLinkOperation(liveLabel, "ready", outcome(err), time.Since(start))
	return err
}

func (l *Live) ensureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, l.cfg.ReadyTimeout)
	defer cancel()

	l.drain()
	for polls := 1; ; polls++ {
		if readyCtx.Err() != nil {
			return l.notReady(ctx, readyCtx.Err())
		}
		observability.RecordReadyPoll()
		status, err := l.pollStatus(readyCtx)
		if err != nil {
			if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				return l.notReady(ctx, err)
			}
			return err
		}
		if status == frame.StatusReady {
			log.Debug().Int("polls", polls).Msg("transport.Live device ready")
			return nil
		}
		log.Debug().Str("status", status).Int("poll", polls).Msg("transport.Live device busy")
	}
}

func (l *Live) pollStatus(ctx context.Context) (string, error) {
	if err := l.send(ctx, frame.TagStatusRequest, frame.StatusReady); err != nil {
		return "", err
	}
	if _, err := l.expect(ctx, frame.TagAck); err != nil {
		return "", err
	}
	msg, err := l.expect(ctx, frame.TagStatus)
	if err != nil {
		return "", err
	}
	if err := l.send(ctx, frame.TagAck); err != nil {
		return "", err
	}
	return msg.Arg(0), nil
}

func (l *Live) notReady(parent context.Context, cause error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %s: %w", ErrDeviceNotReady, l.cfg.ReadyTimeout, cause)
}

// ReadMemory reads length bytes at offset in one exchange.
func (l *Live) ReadMemory(ctx context.Context, offset, length int) ([]byte, error) {
	if err := checkTransfer(offset, length); err != nil {
		return nil, err
	}
	l.op.Lock()
	defer l.op.Unlock()

	start := time.Now()
	data, err := l.readMemory(ctx, offset, length)
	observability.RecordLinkOperation(liveLabel, "read", outcome(err), time.Since(start))
	if err == nil {
		observability.RecordLinkBytes(liveLabel, "rx", len(data))
	}
	return data, err
}

func (l *Live) readMemory(ctx context.Context, offset, length int) ([]byte, error) {
	if err := l.ensureReady(ctx); err != nil {
		return nil, err
	}
	l.drain()
	if err := l.send(ctx, frame.TagReadRequest, ascii.Hex(offset, 4), ascii.Hex(length, 2)); err != nil {
		return nil, err
	}
	if _, err := l.expect(ctx, frame.TagAck); err != nil {
		return nil, err
	}
	msg, err := l.expect(ctx, frame.TagData)
	if err != nil {
		return nil, err
	}
	data, err := ascii.Unhex(msg.Arg(2))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	if len(data) != length {
		return nil, fmt.Errorf("%w: read %#04x returned %d bytes, want %d", ErrUnexpectedReply, offset, len(data), length)
	}
	if err := l.send(ctx, frame.TagAck); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteMemory writes data at offset in one exchange.
func (l *Live) WriteMemory(ctx context.Context, offset int, data []byte) error {
	if err := checkTransfer(offset, len(data)); err != nil {
		return err
	}
	l.op.Lock()
	defer l.op.Unlock()

	start := time.Now()
	err := l.writeMemory(ctx, offset, data)
	observability.RecordLinkOperation(liveLabel, "write", outcome(err), time.Since(start))
	if err == nil {
		observability.RecordLinkBytes(liveLabel, "tx", len(data))
	}
	return err
}

func (l *Live) writeMemory(ctx context.Context, offset int, data []byte) error {
	if err := l.ensureReady(ctx); err != nil {
		return err
	}
	l.drain()
	err := l.send(ctx, frame.TagWriteRequest, ascii.Hex(offset, 4), ascii.Hex(len(data), 2), ascii.HexBytes(data))
	if err != nil {
		return err
	}
	_, err = l.expect(ctx, frame.TagAck)
	return err
}
