package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/larsll/deepracer-llm-agent/internal/server"
)

const serveUsage = `Usage:
  deepracer-llm-agent serve [flags]

Flags:
  -c, --config string    Path to metadata file (default "model_metadata.json")
      --settings string  Path to runtime configuration file (default "agent.yaml")
  -p, --port int         Listen port (overrides the configuration file)`

type serveOptions struct {
	config   string
	settings string
	port     int
}

func parseServeFlags(args []string) (serveOptions, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var opts serveOptions
	fs.StringVar(&opts.config, "config", "model_metadata.json", "path to metadata file")
	fs.StringVar(&opts.config, "c", "model_metadata.json", "path to metadata file")
	fs.StringVar(&opts.settings, "settings", "agent.yaml", "path to runtime configuration file")
	fs.IntVar(&opts.port, "port", 0, "listen port")
	fs.IntVar(&opts.port, "p", 0, "listen port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return serveOptions{}, flag.ErrHelp
		}
		return serveOptions{}, fmt.Errorf("parse serve flags: %w", err)
	}
	return opts, nil
}

func serve(ctx context.Context, args []string) error {
	opts, err := parseServeFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	a, runtime, err := buildAgent(opts.config, opts.settings)
	if err != nil {
		return err
	}
	a.RefreshPricing(ctx)

	port := runtime.Server.Port
	if opts.port > 0 {
		port = opts.port
	}

	srv, err := server.New(port, a)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
