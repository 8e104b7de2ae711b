// Package agent wires the dispatcher, action space and pricing together and
// processes camera frames into validated driving actions.
package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/larsll/deepracer-llm-agent/internal/actionspace"
	"github.com/larsll/deepracer-llm-agent/internal/config"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/llm"
	"github.com/larsll/deepracer-llm-agent/internal/llm/dispatch"
	"github.com/larsll/deepracer-llm-agent/internal/models"
	"github.com/larsll/deepracer-llm-agent/internal/pricing"
)

// Neutral defaults substituted when a model reply cannot be used.
const (
	neutralSteeringAngle = 0.0
	safeDefaultSpeed     = 1.0
)

const contextHint = " Compare with previous image to interpret how you are moving."

// Agent processes frames one at a time: build prompt, dispatch to the
// active adapter, extract the action, normalise it. A frame failure never
// aborts the run; it yields a flagged fallback action instead.
type Agent struct {
	meta       config.Metadata
	runtime    config.Runtime
	space      *actionspace.Space
	dispatcher *dispatch.Dispatcher
	pricing    *pricing.Service
	modelID    string

	mu         sync.Mutex
	frameCount int
}

// New constructs and configures an agent. Metadata or action space
// validation failures and dispatcher misconfiguration are returned to the
// caller: a system that cannot resolve its model cannot function at all.
func New(meta config.Metadata, runtime config.Runtime, inv invoke.Invoker, catalog pricing.CatalogClient) (*Agent, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	space, err := actionspace.New(meta.ActionSpace, meta.ActionSpaceType)
	if err != nil {
		return nil, err
	}

	modelID := runtime.FallbackModelID()
	opts := llm.Options{MaxTokens: runtime.MaxNewTokens}
	systemPrompt := llm.DefaultSystemPrompt
	contextWindow := 0

	if meta.IsLLM() {
		cfg := meta.LLMConfig
		if cfg.ModelID != "" {
			modelID = cfg.ModelID
		}
		opts.MaxTokens = *cfg.MaxTokens
		if cfg.SystemPrompt != "" {
			systemPrompt = string(cfg.SystemPrompt)
		}
		contextWindow = *cfg.ContextWindow
	}

	dispatcher := dispatch.New(inv, opts)
	if err := dispatcher.SetActive(modelID); err != nil {
		return nil, err
	}

	dispatcher.SetSystemPrompt(systemPrompt)
	dispatcher.SetMaxContextMessages(contextWindow)
	dispatcher.SetActionSpace(meta.ActionSpace)
	dispatcher.SetActionSpaceType(space.Type())

	a := &Agent{
		meta:       meta,
		runtime:    runtime,
		space:      space,
		dispatcher: dispatcher,
		pricing:    pricing.NewService(catalog),
		modelID:    modelID,
	}

	slog.Info("agent initialized", "model_id", modelID, "region", runtime.Region,
		"action_space_type", space.Type(), "context_window", contextWindow)
	return a, nil
}

// ModelID returns the active model identifier.
func (a *Agent) ModelID() string {
	return a.modelID
}

// RefreshPricing reloads token rates from the pricing catalog. Best effort:
// failures keep the current rates.
func (a *Agent) RefreshPricing(ctx context.Context) {
	a.pricing.LoadModelPricing(ctx, a.modelID, a.runtime.Region)
}

// ProcessFrame reads an image file and returns a driving action for it.
func (a *Agent) ProcessFrame(ctx context.Context, imagePath string) models.DrivingAction {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		slog.Error("failed to read frame", "path", imagePath, "err", err)
		return fallbackAction(fmt.Sprintf("Failed to process: %v", err))
	}
	return a.ProcessImage(ctx, base64.StdEncoding.EncodeToString(data))
}

// ProcessImage runs one base64-encoded frame through the active adapter and
// normalises the result. Per-frame failures are converted into a flagged
// fallback action; the run continues with the next frame.
func (a *Agent) ProcessImage(ctx context.Context, imageB64 string) models.DrivingAction {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frameCount++
	slog.Debug("processing frame", "frame", a.frameCount)

	prompt := a.framePrompt()
	if a.frameCount > 1 && a.contextEnabled() {
		prompt += contextHint
	}

	raw, err := a.dispatcher.Process(ctx, prompt, imageB64, "")
	if err != nil {
		slog.Error("failed to parse driving action", "err", err)
		return fallbackAction(fmt.Sprintf("Failed to process: %v", err))
	}

	return a.normalize(raw)
}

// normalize validates the raw reply shape and maps the pair onto the action
// space, preserving vendor-supplied extra fields untouched.
func (a *Agent) normalize(raw any) models.DrivingAction {
	obj, ok := raw.(map[string]any)
	if !ok {
		slog.Warn("model reply is not a JSON object")
		return fallbackAction("Missing required parameters in response")
	}

	steering, okSteering := toFloat(obj["steering_angle"])
	speed, okSpeed := toFloat(obj["speed"])

	action := models.DrivingAction{Extra: extraFields(obj)}

	// Honour fallback markers the model itself supplied.
	if flagged, ok := obj["fallback"].(bool); ok {
		action.Fallback = flagged
	}
	if msg, ok := obj["error"].(string); ok {
		action.Error = msg
	}

	// A partial reply keeps the supplied value; only the absent field
	// gets its neutral default before the pair is normalised.
	if !okSteering || !okSpeed {
		slog.Warn("missing required driving parameters in response")
		if !okSteering {
			steering = neutralSteeringAngle
		}
		if !okSpeed {
			speed = safeDefaultSpeed
		}
		action.Fallback = true
		action.Error = "Missing required parameters in response"
	}

	normalized := a.space.Normalize(steering, speed)
	action.SteeringAngle = normalized.SteeringAngle
	action.Speed = normalized.Speed
	return action
}

// TokenUsage combines the adapter's counters with current pricing into a
// cost report.
func (a *Agent) TokenUsage() UsageReport {
	usage := a.dispatcher.TokenUsage()
	costs := a.pricing.CalculateCost(usage.InputTokens, usage.OutputTokens)

	return UsageReport{
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.Total(),
		Pricing:          a.pricing.Pricing(),
		EstimatedCost:    costs.TotalCost,
	}
}

// UsageReport summarises token consumption and estimated cost.
type UsageReport struct {
	PromptTokens     int                  `json:"prompt_tokens"`
	CompletionTokens int                  `json:"completion_tokens"`
	TotalTokens      int                  `json:"total_tokens"`
	Pricing          pricing.TokenPricing `json:"pricing"`
	EstimatedCost    float64              `json:"estimated_cost"`
}

// Reset clears the conversation context and frame counter, optionally
// zeroing token counters and refreshing pricing.
func (a *Agent) Reset(ctx context.Context, resetTokens, refreshPricing bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dispatcher.ClearConversation()
	a.frameCount = 0

	if resetTokens {
		a.dispatcher.ResetTokenCount()
		slog.Info("agent reset (including token counts)")
	} else {
		slog.Info("agent reset")
	}

	if refreshPricing && a.meta.IsLLM() {
		a.pricing.LoadModelPricing(ctx, a.modelID, a.runtime.Region)
	}
}

// framePrompt returns the metadata-supplied repeated prompt, or a generic
// per-frame prompt when none is configured.
func (a *Agent) framePrompt() string {
	if a.meta.IsLLM() && a.meta.LLMConfig.RepeatedPrompt != "" {
		return a.meta.LLMConfig.RepeatedPrompt
	}
	return fmt.Sprintf("Analyze this image. This is image #%d.", a.frameCount)
}

func (a *Agent) contextEnabled() bool {
	return a.meta.IsLLM() && *a.meta.LLMConfig.ContextWindow > 0
}

func fallbackAction(reason string) models.DrivingAction {
	return models.DrivingAction{
		SteeringAngle: neutralSteeringAngle,
		Speed:         safeDefaultSpeed,
		Fallback:      true,
		Error:         reason,
	}
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func extraFields(obj map[string]any) map[string]any {
	extra := make(map[string]any)
	for k, v := range obj {
		switch k {
		case "steering_angle", "speed", "fallback", "error":
		default:
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
