package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/larsll/deepracer-llm-agent/internal/agent"
	"github.com/larsll/deepracer-llm-agent/internal/config"
	"github.com/larsll/deepracer-llm-agent/internal/frames"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
)

const runUsage = `Usage:
  deepracer-llm-agent run [flags]

Flags:
  -f, --frames int     Number of frames to process (default: all eligible)
  -x, --skip int       Process every Nth frame (default 2)
  -s, --start int      Start from Nth image (default 0)
  -c, --config string  Path to metadata file (default "model_metadata.json")
  -i, --images string  Path to folder with images (default "./test-images")
      --settings string  Path to runtime configuration file (default "agent.yaml")`

// interFrameDelay spaces out requests to stay under provider rate limits.
const interFrameDelay = 50 * time.Millisecond

type runOptions struct {
	frames   int
	skip     int
	start    int
	config   string
	images   string
	settings string
}

func parseRunFlags(args []string) (runOptions, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, runUsage)
	}

	var opts runOptions
	fs.IntVar(&opts.frames, "frames", 0, "number of frames to process")
	fs.IntVar(&opts.frames, "f", 0, "number of frames to process")
	fs.IntVar(&opts.skip, "skip", 2, "process every Nth frame")
	fs.IntVar(&opts.skip, "x", 2, "process every Nth frame")
	fs.IntVar(&opts.start, "start", 0, "start from Nth image")
	fs.IntVar(&opts.start, "s", 0, "start from Nth image")
	fs.StringVar(&opts.config, "config", "model_metadata.json", "path to metadata file")
	fs.StringVar(&opts.config, "c", "model_metadata.json", "path to metadata file")
	fs.StringVar(&opts.images, "images", "./test-images", "path to folder with images")
	fs.StringVar(&opts.images, "i", "./test-images", "path to folder with images")
	fs.StringVar(&opts.settings, "settings", "agent.yaml", "path to runtime configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runOptions{}, flag.ErrHelp
		}
		return runOptions{}, fmt.Errorf("parse run flags: %w", err)
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseRunFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	a, _, err := buildAgent(opts.config, opts.settings)
	if err != nil {
		return err
	}
	a.RefreshPricing(ctx)

	files, err := frames.List(opts.images)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %q", opts.images)
	}

	selected := frames.Select(files, opts.start, opts.skip, opts.frames)
	slog.Info("starting frame loop",
		"images", len(files), "start", opts.start, "skip", opts.skip, "frames", len(selected))

	for i, path := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Info("processing image", "frame", fmt.Sprintf("%d/%d", i+1, len(selected)), "file", path)
		action := a.ProcessFrame(ctx, path)

		rendered, err := json.MarshalIndent(action, "", "  ")
		if err != nil {
			return fmt.Errorf("render action: %w", err)
		}
		fmt.Println(string(rendered))

		if i < len(selected)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interFrameDelay):
			}
		}
	}

	printUsageSummary(a)
	slog.Info("all images processed successfully")
	return nil
}

func printUsageSummary(a *agent.Agent) {
	usage := a.TokenUsage()

	fmt.Println()
	fmt.Println("Token Usage Summary:")
	fmt.Printf("  Prompt tokens:     %d\n", usage.PromptTokens)
	fmt.Printf("  Completion tokens: %d\n", usage.CompletionTokens)
	fmt.Printf("  Total tokens:      %d\n", usage.TotalTokens)
	fmt.Printf("  Prompt rate:       $%.4f/1K tokens\n", usage.Pricing.PromptRate)
	fmt.Printf("  Completion rate:   $%.4f/1K tokens\n", usage.Pricing.CompletionRate)
	fmt.Printf("  Estimated cost:    $%.4f\n", usage.EstimatedCost)
}

// buildAgent assembles the agent from the metadata contract, the optional
// runtime configuration and the HTTP invoker.
func buildAgent(metadataPath, settingsPath string) (*agent.Agent, config.Runtime, error) {
	meta, err := config.LoadMetadata(metadataPath)
	if err != nil {
		return nil, config.Runtime{}, err
	}

	runtime, err := config.LoadRuntime(settingsPath)
	if err != nil {
		return nil, config.Runtime{}, err
	}

	invoker, err := invoke.NewHTTP(runtime.InvokeBaseURL(), runtime.Invoke.Headers)
	if err != nil {
		return nil, config.Runtime{}, err
	}

	a, err := agent.New(meta, runtime, invoker, nil)
	if err != nil {
		return nil, config.Runtime{}, err
	}
	return a, runtime, nil
}
