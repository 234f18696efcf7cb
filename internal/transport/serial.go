package transport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the subset of a serial port the link needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// allow tests to override the operating system
var (
	openPort  = func(name string, mode *serial.Mode) (Port, error) { return serial.Open(name, mode) }
	listPorts = enumerator.GetDetailedPortsList
)

// Mode is the operating mode reported by the radio on connect.
type Mode int

const (
	ModeUnknown Mode = iota
	// ModeCP accepts configuration protocol frames.
	ModeCP
	// ModeNMEA streams navigation sentences and ignores memory commands.
	ModeNMEA
)

func (m Mode) String() string {
	switch m {
	case ModeCP:
		return "cp"
	case ModeNMEA:
		return "nmea"
	default:
		return "unknown"
	}
}

const modeProbe = "P?"

// SerialConfig describes a serial link.
type SerialConfig struct {
	BaudRate     int
	ProbeTimeout time.Duration
	Link         Config
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:     9600,
		ProbeTimeout: time.Second,
		Link:         DefaultConfig(),
	}
}

func (c SerialConfig) WithDefaults() SerialConfig {
	def := DefaultSerialConfig()
	if c.BaudRate <= 0 {
		c.BaudRate = def.BaudRate
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	c.Link = c.Link.WithDefaults()
	return c
}

// SerialLink is a Live transport bound to an open serial port.
type SerialLink struct {
	*Live
	port Port
	Mode Mode
}

// OpenSerial opens path, verifies the radio is in CP mode and starts the link.
func OpenSerial(path string, cfg SerialConfig) (*SerialLink, error) {
	cfg = cfg.WithDefaults()
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPort(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", path, err)
	}

	detected, err := DetectMode(port, cfg.ProbeTimeout)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	log.Info().Str("port", path).Stringer("mode", detected).Msg("transport.OpenSerial detected mode")
	if detected != ModeCP {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotCPMode, detected)
	}

	// a bufio reader gives up on repeated empty reads, so the link blocks
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial port %s: %w", path, err)
	}
	return &SerialLink{
		Live: NewLive(port, cfg.Link),
		port: port,
		Mode: detected,
	}, nil
}

// Close stops the link and releases the port.
func (s *SerialLink) Close() error {
	_ = s.Live.Close()
	return s.port.Close()
}

// DetectMode sends the mode probe and classifies the first reply byte. It
// must run before a Live link starts reading the port.
func DetectMode(port Port, timeout time.Duration) (Mode, error) {
	if err := port.ResetInputBuffer(); err != nil {
		return ModeUnknown, fmt.Errorf("mode probe: %w", err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return ModeUnknown, fmt.Errorf("mode probe: %w", err)
	}
	if _, err := io.WriteString(port, modeProbe); err != nil {
		return ModeUnknown, fmt.Errorf("mode probe: %w", err)
	}

	buf := make([]byte, 1)
	n, err := port.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return ModeUnknown, fmt.Errorf("mode probe: %w", err)
	}
	if n == 0 {
		return ModeUnknown, fmt.Errorf("%w: no reply to mode probe within %s", ErrTimeout, timeout)
	}
	// the rest of the probe reply is noise to the frame reader
	_ = port.ResetInputBuffer()
	switch buf[0] {
	case '@':
		return ModeCP, nil
	case 'P', '$':
		return ModeNMEA, nil
	default:
		return ModeUnknown, nil
	}
}

// PortInfo is a serial port that belongs to a supported radio.
type PortInfo struct {
	Name   string
	Model  string
	Serial string
}

// FindPorts lists USB serial ports whose vendor/product ids match a layout.
func FindPorts() ([]PortInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("listing ports: %w", err)
	}
	var out []PortInfo
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		vid, err1 := strconv.ParseUint(strings.TrimSpace(p.VID), 16, 16)
		pid, err2 := strconv.ParseUint(strings.TrimSpace(p.PID), 16, 16)
		if err1 != nil || err2 != nil {
			continue
		}
		l, err := layout.ByUSB(uint16(vid), uint16(pid))
		if err != nil {
			continue
		}
		out = append(out, PortInfo{Name: p.Name, Model: l.Model, Serial: p.SerialNumber})
	}
	return out, nil
}
