// Package session runs full read and write cycles against one radio.
//
// Ownership boundary:
// - binding a memory layout and a transport
// - ordering modules through a batch read or write
// - owning and publishing the decoded Config
//
// A Session serializes its cycles. The decoded Config is only replaced by the
// session and reaches observers as a cloned, read-only value.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/modules"
	"github.com/danmuck/hxctl/internal/observability"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotBound     = errors.New("session: no device bound")
	ErrNilTransport = errors.New("session: transport is nil")
	ErrNilLayout    = errors.New("session: layout is nil")
)

// State is the binding state of a session.
type State int

const (
	StateIdle State = iota
	StateBound
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StatePopulated:
		return "populated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config tunes how cycles use the transport.
type Config struct {
	// ChunkSize caps each memory request. Zero selects batch.DefaultChunkSize.
	ChunkSize int
	// WriteChannels lets write cycles touch the unverified channel table.
	WriteChannels bool
}

// Snapshot is what observers see of a session.
type Snapshot struct {
	ID     string
	State  State
	Model  string
	Config *modules.Config
}

type Session struct {
	cfg Config

	// mu serializes cycles and guards the binding.
	mu       sync.Mutex
	id       string
	state    State
	layout   *layout.Layout
	link     transport.Transport
	registry *modules.Registry
	config   *modules.Config
	// base is the device memory of every module range as last read or
	// written. Nil means it must be read before the next write.
	base batch.Results

	published *Published[Snapshot]
}

func New(cfg Config) *Session {
	s := &Session{cfg: cfg, config: &modules.Config{}}
	s.published = NewPublished(s.snapshotLocked())
	return s
}

// Published exposes the current snapshot to observers.
func (s *Session) Published() *Published[Snapshot] {
	return s.published
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Layout returns the bound layout or nil.
func (s *Session) Layout() *layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

// Config returns a copy of the decoded state.
func (s *Session) Config() *modules.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

// Reset binds l and link and discards any decoded state.
func (s *Session) Reset(l *layout.Layout, link transport.Transport) error {
	if l == nil {
		return ErrNilLayout
	}
	if link == nil {
		return ErrNilTransport
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.layout = l
	s.link = link
	s.registry = modules.Standard(l)
	s.config = &modules.Config{}
	s.base = nil
	s.state = StateBound
	log.Info().Str("session", s.id).Str("model", l.Model).Msg("session.Reset bound device")
	s.publishLocked()
	return nil
}

// Close unbinds the device and empties the decoded state. The transport is
// owned by the caller and left open.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		log.Info().Str("session", s.id).Msg("session.Close")
	}
	s.id = ""
	s.layout = nil
	s.link = nil
	s.registry = nil
	s.config = &modules.Config{}
	s.base = nil
	s.state = StateIdle
	s.publishLocked()
}

// ReadAll reads every module's ranges in one batch and decodes them into a
// new document. Module failures are joined and do not stop other modules;
// transport failures abort the cycle.
func (s *Session) ReadAll(ctx context.Context) (*yaml.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return nil, ErrNotBound
	}
	started := time.Now()
	logger := log.With().Str("session", s.id).Str("model", s.layout.Model).Logger()

	reader, results, err := s.readRanges(ctx)
	if err != nil {
		observability.RecordCycle(s.layout.Model, "read", err)
		logger.Warn().Err(err).Msg("session.ReadAll transport failure")
		return nil, err
	}
	s.base = results

	mods := s.registry.Modules()
	cfg := &modules.Config{}
	doc := document.New()
	var errs []error
	for _, m := range mods {
		if err := m.Decode(results, cfg, doc); err != nil {
			observability.RecordModuleError(m.Name(), "read")
			logger.Warn().Str("module", m.Name()).Err(err).Msg("session.ReadAll decode failed")
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	s.config = cfg
	s.state = StatePopulated
	s.publishLocked()

	err = errors.Join(errs...)
	observability.RecordCycle(s.layout.Model, "read", err)
	logger.Info().
		Int("ranges", len(reader.Ranges())).
		Int("reads", len(reader.Spans())).
		Int("failed_modules", len(errs)).
		Dur("elapsed", time.Since(started)).
		Msg("session.ReadAll done")
	return doc, err
}

// WriteAll encodes every module from doc and then writes the queued tables.
// Tables are encoded on top of the memory last read, which is fetched first
// when the session has none, so bytes no module models are written back
// unchanged. Any encode failure aborts before a write is sent. A transport
// failure during the write leaves earlier blocks on the device.
func (s *Session) WriteAll(ctx context.Context, doc *yaml.Node) (modules.Diagnostics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return nil, ErrNotBound
	}
	if _, err := document.Root(doc); err != nil {
		return nil, err
	}
	started := time.Now()
	logger := log.With().Str("session", s.id).Str("model", s.layout.Model).Logger()

	if s.base == nil {
		_, base, err := s.readRanges(ctx)
		if err != nil {
			observability.RecordCycle(s.layout.Model, "write", err)
			logger.Warn().Err(err).Msg("session.WriteAll baseline read failed")
			return nil, err
		}
		s.base = base
	}

	writer := batch.NewWriter(s.cfg.ChunkSize)
	wc := modules.NewWriteContext(writer)
	wc.Base = s.base
	wc.WriteChannels = s.cfg.WriteChannels
	var written []string
	for _, m := range s.registry.Modules() {
		ok, err := m.Encode(doc, wc)
		if err != nil {
			observability.RecordModuleError(m.Name(), "write")
			observability.RecordCycle(s.layout.Model, "write", err)
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		if ok {
			written = append(written, m.Name())
		}
	}
	if err := writer.Execute(ctx, s.link); err != nil {
		// some blocks may have landed
		s.base = nil
		observability.RecordCycle(s.layout.Model, "write", err)
		logger.Warn().Err(err).Msg("session.WriteAll transport failure")
		return nil, fmt.Errorf("session: write: %w", err)
	}

	for name, data := range writer.Results() {
		s.base[name] = data
	}
	s.merge(wc.Out)
	s.state = StatePopulated
	s.publishLocked()
	observability.RecordCycle(s.layout.Model, "write", nil)
	logger.Info().
		Strs("modules", written).
		Int("bytes", writer.Bytes()).
		Dur("elapsed", time.Since(started)).
		Msg("session.WriteAll done")
	return wc.Diagnostics, nil
}

// readRanges reads every module range in one batch.
func (s *Session) readRanges(ctx context.Context) (*batch.Reader, batch.Results, error) {
	reader := batch.NewReader(s.cfg.ChunkSize)
	for _, m := range s.registry.Modules() {
		if err := m.AddRanges(reader); err != nil {
			return nil, nil, fmt.Errorf("session: %s ranges: %w", m.Name(), err)
		}
	}
	results, err := reader.Execute(ctx, s.link)
	if err != nil {
		return nil, nil, fmt.Errorf("session: read: %w", err)
	}
	return reader, results, nil
}

// merge replaces the tables a write pass produced.
func (s *Session) merge(out *modules.Config) {
	if out.Channels != nil {
		s.config.Channels = out.Channels
	}
	if out.Waypoints != nil {
		s.config.Waypoints = out.Waypoints
	}
	if out.Routes != nil {
		s.config.Routes = out.Routes
	}
	if out.IndividualDirectory != nil {
		s.config.IndividualDirectory = out.IndividualDirectory
	}
	if out.GroupDirectory != nil {
		s.config.GroupDirectory = out.GroupDirectory
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{ID: s.id, State: s.state, Config: s.config.Clone()}
	if s.layout != nil {
		snap.Model = s.layout.Model
	}
	return snap
}

func (s *Session) publishLocked() {
	s.published.Publish(s.snapshotLocked())
}
