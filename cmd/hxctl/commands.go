package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/hxctl/internal/config"
	"github.com/danmuck/hxctl/internal/device"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/server"
	"github.com/rs/zerolog/log"
)

func connect(ctx context.Context, cfg config.Config) (*device.Manager, error) {
	m := device.NewManager(cfg.Device())
	switch {
	case cfg.Image != "":
		data, err := os.ReadFile(cfg.Image)
		if err != nil {
			return nil, err
		}
		if err := m.ConnectImage(data, cfg.Model); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Image, err)
		}
	case cfg.Port != "":
		if err := m.ConnectSerial(ctx, cfg.Port, cfg.Model); err != nil {
			return nil, err
		}
	default:
		ports, err := m.Ports()
		if err != nil {
			return nil, err
		}
		if len(ports) != 1 {
			return nil, fmt.Errorf("found %d radios, pick one with -port or -image", len(ports))
		}
		if err := m.ConnectSerial(ctx, ports[0].Name, cfg.Model); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func runPorts(args []string) error {
	fs := flag.NewFlagSet("ports", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	m := device.NewManager(device.DefaultConfig())
	ports, err := m.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\t%s\n", p.Name, p.Model, p.Serial)
	}
	return nil
}

func runRead(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	var cf connFlags
	cf.register(fs)
	output := fs.String("o", "", "output document (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.resolve()
	if err != nil {
		return err
	}
	m, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Disconnect()

	doc, readErr := m.Session().ReadAll(ctx)
	if doc == nil {
		return readErr
	}
	if *output == "" {
		out, err := document.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(out); err != nil {
			return err
		}
	} else if err := document.Save(*output, doc); err != nil {
		return err
	}
	// a partial document is still written before module failures are reported
	return readErr
}

func runWrite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	var cf connFlags
	cf.register(fs)
	input := fs.String("i", "", "document to write")
	saveTo := fs.String("save", "", "where to save a modified image (defaults to -image)")
	writeChannels := fs.Bool("write-channels", false, "also write the channel table (addresses unverified)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("missing -i document")
	}
	doc, err := document.Load(*input)
	if err != nil {
		return err
	}
	cfg, err := cf.resolve()
	if err != nil {
		return err
	}
	if *writeChannels {
		cfg.WriteChannels = true
	}
	m, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Disconnect()

	diag, err := m.Session().WriteAll(ctx, doc)
	if err != nil {
		return err
	}
	for table, usage := range diag {
		if usage.Skipped {
			log.Warn().Str("table", table).Msg("hxctl.write table skipped (see write_channels)")
			continue
		}
		log.Info().Str("table", table).Int("used", usage.Used).Int("remaining", usage.Remaining).Msg("hxctl.write table written")
	}

	if img, err := m.Image(); err == nil && img.Dirty() {
		target := *saveTo
		if target == "" {
			target = cfg.Image
		}
		if err := os.WriteFile(target, img.Bytes(), 0o644); err != nil {
			return err
		}
		log.Info().Str("path", target).Msg("hxctl.write image saved")
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var cf connFlags
	cf.register(fs)
	addr := fs.String("addr", "", "listen address (overrides listen_addr)")
	detached := fs.Bool("detached", false, "start without connecting a radio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.resolve()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	var m *device.Manager
	if *detached {
		m = device.NewManager(cfg.Device())
	} else if m, err = connect(ctx, cfg); err != nil {
		return err
	}
	defer m.Disconnect()

	srv := server.New(server.Options{Addr: cfg.ListenAddr, CorsOrigins: cfg.CorsOrigins}, m)
	return srv.ListenAndServe(ctx)
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	output := fs.String("output", "hxctl.toml", "output path for the config template")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	log.Info().Str("path", *output).Msg("hxctl.init-config wrote template")
	return nil
}

func runCheckConfig(args []string) error {
	fs := flag.NewFlagSet("check-config", flag.ContinueOnError)
	input := fs.String("input", "hxctl.toml", "config path to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*input)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
