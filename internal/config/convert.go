package config

import (
	"github.com/danmuck/hxctl/internal/device"
	"github.com/danmuck/hxctl/internal/session"
	"github.com/danmuck/hxctl/internal/transport"
)

// Device converts cfg into device manager settings.
func (cfg Config) Device() device.Config {
	return device.Config{
		Serial: transport.SerialConfig{
			BaudRate:     cfg.BaudRate,
			ProbeTimeout: cfg.ProbeTimeout,
			Link: transport.Config{
				ReadyTimeout: cfg.ReadyTimeout,
				StepTimeout:  cfg.StepTimeout,
			},
		},
		Session: session.Config{ChunkSize: cfg.ChunkSize, WriteChannels: cfg.WriteChannels},
	}
}
