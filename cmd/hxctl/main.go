package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/hxctl/internal/config"
	"github.com/danmuck/hxctl/internal/logging"
	"github.com/danmuck/hxctl/internal/observability"
)

const usage = `usage: hxctl <command> [flags]

commands:
  ports          list attached radios
  read           read the radio configuration into a YAML document
  write          write a YAML document to the radio
  serve          run the HTTP API
  init-config    write an hxctl.toml template
  check-config   validate an hxctl.toml
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	logging.ConfigureRuntime()
	observability.InitLogger("hxctl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "ports":
		err = runPorts(args)
	case "read":
		err = runRead(ctx, args)
	case "write":
		err = runWrite(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "init-config":
		err = runInitConfig(args)
	case "check-config":
		err = runCheckConfig(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "hxctl %s: %v\n", cmd, err)
		}
		os.Exit(1)
	}
}

// connFlags are shared by every command that talks to a radio.
type connFlags struct {
	configPath string
	port       string
	image      string
	model      string
}

func (f *connFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "hxctl.toml path (optional)")
	fs.StringVar(&f.port, "port", "", "serial port of the radio")
	fs.StringVar(&f.image, "image", "", "memory image file instead of a live radio")
	fs.StringVar(&f.model, "model", "", "radio model (detected when empty)")
}

// resolve loads the config file, if any, and applies flag overrides.
func (f *connFlags) resolve() (config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if f.port != "" {
		cfg.Port, cfg.Image = f.port, ""
	}
	if f.image != "" {
		cfg.Image, cfg.Port = f.image, ""
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
