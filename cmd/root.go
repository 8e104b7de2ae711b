package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const usage = `deepracer-llm-agent drives steering and speed decisions with an LLM.

Usage:
  deepracer-llm-agent run [flags]
  deepracer-llm-agent serve [flags]

Commands:
  run      Process a folder of camera frames and print driving actions
  serve    Start the HTTP control surface

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	setupLogging()

	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "run":
		return run(ctx, args[1:])
	case "serve":
		return serve(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
