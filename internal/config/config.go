package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/transport"
)

// Config is the hxctl runtime configuration.
type Config struct {
	Model        string
	Port         string
	BaudRate     int
	Image        string
	ReadyTimeout time.Duration
	StepTimeout  time.Duration
	ProbeTimeout time.Duration
	ChunkSize    int
	// WriteChannels opts into writing the channel table, whose addresses are
	// not confirmed against a radio.
	WriteChannels bool
	ListenAddr    string
	CorsOrigins   []string
}

// fileConfig mirrors hxctl.toml. Durations are strings such as "1s".
type fileConfig struct {
	Model         string   `toml:"model"`
	Port          string   `toml:"port"`
	BaudRate      int      `toml:"baud_rate"`
	Image         string   `toml:"image"`
	ReadyTimeout  string   `toml:"ready_timeout"`
	StepTimeout   string   `toml:"step_timeout"`
	ProbeTimeout  string   `toml:"probe_timeout"`
	ChunkSize     int      `toml:"chunk_size"`
	WriteChannels bool     `toml:"write_channels"`
	ListenAddr    string   `toml:"listen_addr"`
	CorsOrigins   []string `toml:"cors_origins"`
}

func DefaultConfig() Config {
	serial := transport.DefaultSerialConfig()
	return Config{
		BaudRate:     serial.BaudRate,
		ReadyTimeout: serial.Link.ReadyTimeout,
		StepTimeout:  serial.Link.StepTimeout,
		ProbeTimeout: serial.ProbeTimeout,
		ChunkSize:    0x40,
		ListenAddr:   "127.0.0.1:9870",
		CorsOrigins:  []string{"http://localhost:3000"},
	}
}

// Load reads path on top of DefaultConfig. Keys absent from the file keep
// their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("model") {
		cfg.Model = strings.TrimSpace(raw.Model)
	}
	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("image") {
		cfg.Image = strings.TrimSpace(raw.Image)
	}
	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"ready_timeout", raw.ReadyTimeout, &cfg.ReadyTimeout},
		{"step_timeout", raw.StepTimeout, &cfg.StepTimeout},
		{"probe_timeout", raw.ProbeTimeout, &cfg.ProbeTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("chunk_size") {
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("write_channels") {
		cfg.WriteChannels = raw.WriteChannels
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Model != "" {
		if _, err := layout.ByModel(cfg.Model); err != nil {
			return err
		}
	}
	if cfg.Port != "" && cfg.Image != "" {
		return fmt.Errorf("port and image are mutually exclusive")
	}
	if cfg.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", cfg.BaudRate)
	}
	if cfg.ReadyTimeout <= 0 {
		return fmt.Errorf("ready_timeout must be positive, got %s", cfg.ReadyTimeout)
	}
	if cfg.StepTimeout < 0 || cfg.ProbeTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > transport.MaxTransfer {
		return fmt.Errorf("chunk_size must be within 1..%d, got %d", transport.MaxTransfer, cfg.ChunkSize)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
