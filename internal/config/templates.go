package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders DefaultConfig as hxctl.toml.
func Template() (string, error) {
	def := DefaultConfig()
	raw := fileConfig{
		Model:        "HX890",
		Port:         "/dev/ttyACM0",
		BaudRate:     def.BaudRate,
		ReadyTimeout: def.ReadyTimeout.String(),
		StepTimeout:  def.StepTimeout.String(),
		ProbeTimeout: def.ProbeTimeout.String(),
		ChunkSize:    def.ChunkSize,
		ListenAddr:   def.ListenAddr,
		CorsOrigins:  def.CorsOrigins,
	}
	data, err := toml.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
