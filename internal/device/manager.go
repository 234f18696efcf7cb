// Package device manages the connection to one radio, live or offline, and
// binds it to a config session.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/session"
	"github.com/danmuck/hxctl/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnecting  = errors.New("device: connection already in progress")
	ErrNoImage     = errors.New("device: no memory image connected")
	ErrUnknownPort = errors.New("device: port does not belong to a supported radio")
	ErrAborted     = errors.New("device: connection aborted by disconnect")
)

// State is the connection state of the manager.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateSerialConnecting State = "serial-connecting"
	StateSerialConnected  State = "serial-connected"
	StateImageConnected   State = "image-connected"
)

// Status describes the current connection.
type Status struct {
	State State  `json:"state"`
	Port  string `json:"port,omitempty"`
	Model string `json:"model,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// Link is a live transport that owns an OS resource.
type Link interface {
	transport.Transport
	io.Closer
}

type Config struct {
	Serial  transport.SerialConfig
	Session session.Config
}

func DefaultConfig() Config {
	return Config{Serial: transport.DefaultSerialConfig()}
}

type Manager struct {
	cfg     Config
	session *session.Session
	status  *session.Published[Status]

	// test hooks
	open func(path string, cfg transport.SerialConfig) (Link, string, error)
	find func() ([]transport.PortInfo, error)

	mu    sync.Mutex
	link  Link
	image *transport.Image
}

func NewManager(cfg Config) *Manager {
	cfg.Serial = cfg.Serial.WithDefaults()
	return &Manager{
		cfg:     cfg,
		session: session.New(cfg.Session),
		status:  session.NewPublished(Status{State: StateDisconnected}),
		open:    openSerial,
		find:    transport.FindPorts,
	}
}

func openSerial(path string, cfg transport.SerialConfig) (Link, string, error) {
	link, err := transport.OpenSerial(path, cfg)
	if err != nil {
		return nil, "", err
	}
	return link, link.Mode.String(), nil
}

// Session returns the session bound to the current connection.
func (m *Manager) Session() *session.Session { return m.session }

// Status returns the published connection status.
func (m *Manager) Status() *session.Published[Status] { return m.status }

// Ports lists attached radios.
func (m *Manager) Ports() ([]transport.PortInfo, error) {
	return m.find()
}

// ConnectSerial opens port, checks the radio is in CP mode and ready, and
// binds the session. An empty model is looked up from the USB ids of port.
// The manager lock is released while the port is probed.
func (m *Manager) ConnectSerial(ctx context.Context, port, model string) error {
	m.mu.Lock()
	if m.status.Get().State == StateSerialConnecting {
		m.mu.Unlock()
		return ErrConnecting
	}
	m.disconnectLocked()
	l, err := m.resolveModel(port, model)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.status.Publish(Status{State: StateSerialConnecting, Port: port, Model: l.Model})
	m.mu.Unlock()

	link, mode, err := m.open(port, m.cfg.Serial)
	if err == nil {
		if err = link.EnsureReady(ctx); err != nil {
			_ = link.Close()
			err = fmt.Errorf("device: %s: %w", port, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil && m.status.Get().State != StateSerialConnecting {
		_ = link.Close()
		err = fmt.Errorf("%w: %s", ErrAborted, port)
	}
	if err == nil {
		err = m.session.Reset(l, link)
		if err != nil {
			_ = link.Close()
		}
	}
	if err != nil {
		m.status.Publish(Status{State: StateDisconnected})
		log.Warn().Str("port", port).Err(err).Msg("device.ConnectSerial failed")
		return err
	}
	m.link = link
	m.status.Publish(Status{State: StateSerialConnected, Port: port, Model: l.Model, Mode: mode})
	log.Info().Str("port", port).Str("model", l.Model).Msg("device.ConnectSerial connected")
	return nil
}

func (m *Manager) resolveModel(port, model string) (*layout.Layout, error) {
	if model != "" {
		return layout.ByModel(model)
	}
	ports, err := m.find()
	if err != nil {
		return nil, err
	}
	for _, p := range ports {
		if p.Name == port {
			return layout.ByModel(p.Model)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPort, port)
}

// ConnectImage binds a memory image. An empty model detects the layout from
// the image length and signature.
func (m *Manager) ConnectImage(data []byte, model string) error {
	var (
		l   *layout.Layout
		err error
	)
	if model != "" {
		l, err = layout.ByModel(model)
	} else {
		l, err = layout.DetectImage(data)
	}
	if err != nil {
		return err
	}
	if len(data) != l.ImageLength {
		return fmt.Errorf("%w: %s image must be %d bytes, got %d", layout.ErrUnsupportedDevice, l.Model, l.ImageLength, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Get().State == StateSerialConnecting {
		return ErrConnecting
	}
	m.disconnectLocked()
	img := transport.NewImage(data)
	if err := m.session.Reset(l, img); err != nil {
		return err
	}
	m.image = img
	m.status.Publish(Status{State: StateImageConnected, Model: l.Model})
	log.Info().Str("model", l.Model).Int("bytes", len(data)).Msg("device.ConnectImage connected")
	return nil
}

// Image returns the connected memory image, including unsaved writes.
func (m *Manager) Image() (*transport.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.image == nil {
		return nil, ErrNoImage
	}
	return m.image, nil
}

// Disconnect releases the link and empties the session.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Manager) disconnectLocked() {
	if m.link != nil {
		if err := m.link.Close(); err != nil {
			log.Warn().Err(err).Msg("device.Disconnect close failed")
		}
		m.link = nil
	}
	m.image = nil
	m.session.Close()
	if m.status.Get().State != StateDisconnected {
		m.status.Publish(Status{State: StateDisconnected})
	}
}
