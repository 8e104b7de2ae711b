// Package dispatch selects the vendor adapter for a model identifier and
// forwards calls to the currently active one.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/larsll/deepracer-llm-agent/internal/actionspace"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/llm"
	"github.com/larsll/deepracer-llm-agent/internal/llm/claude"
	"github.com/larsll/deepracer-llm-agent/internal/llm/llama"
	"github.com/larsll/deepracer-llm-agent/internal/llm/mistral"
	"github.com/larsll/deepracer-llm-agent/internal/llm/nova"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

// Builder constructs one vendor adapter for a resolved model ID.
type Builder func(modelID string, inv invoke.Invoker, opts llm.Options) llm.Adapter

type rule struct {
	family  llm.Family
	markers []string
	build   Builder
}

// defaultRules is the family registry in fixed precedence order. Resolution
// is case-insensitive substring matching over the whole model identifier.
func defaultRules() []rule {
	return []rule{
		{
			family:  llm.FamilyClaude,
			markers: []string{"anthropic", "claude"},
			build: func(id string, inv invoke.Invoker, opts llm.Options) llm.Adapter {
				return claude.New(id, inv, opts)
			},
		},
		{
			family:  llm.FamilyMistral,
			markers: []string{"mistral"},
			build: func(id string, inv invoke.Invoker, opts llm.Options) llm.Adapter {
				return mistral.New(id, inv, opts)
			},
		},
		{
			family:  llm.FamilyLlama,
			markers: []string{"meta", "llama"},
			build: func(id string, inv invoke.Invoker, opts llm.Options) llm.Adapter {
				return llama.New(id, inv, opts)
			},
		},
		{
			family:  llm.FamilyNova,
			markers: []string{"amazon", "nova"},
			build: func(id string, inv invoke.Invoker, opts llm.Options) llm.Adapter {
				return nova.New(id, inv, opts)
			},
		},
	}
}

// Dispatcher resolves model identifiers to vendor adapters and holds the
// active adapter plus the configuration applied to it.
type Dispatcher struct {
	rules    []rule
	invoker  invoke.Invoker
	opts     llm.Options
	active   llm.Adapter
	settings llm.Settings
}

// New constructs a dispatcher with the default family registry.
func New(inv invoke.Invoker, opts llm.Options) *Dispatcher {
	return &Dispatcher{
		rules:   defaultRules(),
		invoker: inv,
		opts:    opts,
	}
}

// Resolve constructs a fresh adapter for the given model identifier.
func (d *Dispatcher) Resolve(modelID string) (llm.Adapter, error) {
	id := strings.ToLower(modelID)
	for _, r := range d.rules {
		for _, marker := range r.markers {
			if strings.Contains(id, marker) {
				return r.build(modelID, d.invoker, d.opts), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", llm.ErrUnsupportedModel, modelID)
}

// SetActive resolves the model identifier and installs the result as the
// current handler. Subsequent configuration calls target it.
func (d *Dispatcher) SetActive(modelID string) error {
	adapter, err := d.Resolve(modelID)
	if err != nil {
		return err
	}
	d.configure(adapter, true)
	d.active = adapter
	slog.Info("set active model", "model_id", modelID, "family", adapter.Family())
	return nil
}

// Active returns the current adapter, nil when none is set.
func (d *Dispatcher) Active() llm.Adapter {
	return d.active
}

// SetSystemPrompt configures the system prompt on the active adapter and on
// any transient adapters built for per-call overrides.
func (d *Dispatcher) SetSystemPrompt(prompt string) {
	d.settings.SystemPrompt = prompt
	if d.active != nil {
		d.active.SetSystemPrompt(prompt)
	}
}

// SetMaxContextMessages configures the conversation window in turns.
func (d *Dispatcher) SetMaxContextMessages(n int) {
	d.settings.MaxContext = n
	if d.active != nil {
		d.active.SetMaxContextMessages(n)
	}
}

// SetActionSpace configures the raw action space declaration.
func (d *Dispatcher) SetActionSpace(raw json.RawMessage) {
	d.settings.ActionSpace = raw
	if d.active != nil {
		d.active.SetActionSpace(raw)
	}
}

// SetActionSpaceType configures the action space type.
func (d *Dispatcher) SetActionSpaceType(t actionspace.Type) {
	d.settings.ActionSpaceType = t
	if d.active != nil {
		d.active.SetActionSpaceType(t)
	}
}

// ClearConversation discards the active adapter's conversation context.
func (d *Dispatcher) ClearConversation() {
	if d.active != nil {
		d.active.ClearConversation()
	}
}

// Process forwards one prompt/image pair. A non-empty modelID override
// resolves a transient adapter for this call only, bypassing the active
// adapter and its conversation state.
func (d *Dispatcher) Process(ctx context.Context, prompt, imageB64, modelID string) (any, error) {
	adapter := d.active
	if modelID != "" {
		transient, err := d.Resolve(modelID)
		if err != nil {
			return nil, err
		}
		d.configure(transient, false)
		adapter = transient
	}
	if adapter == nil {
		return nil, llm.ErrNoActiveModel
	}
	return adapter.Process(ctx, prompt, imageB64)
}

// TokenUsage reports the active adapter's counters, all-zero when no
// adapter is active.
func (d *Dispatcher) TokenUsage() models.TokenUsage {
	if d.active == nil {
		return models.TokenUsage{}
	}
	return d.active.TokenUsage()
}

// ResetTokenCount zeroes the active adapter's counters.
func (d *Dispatcher) ResetTokenCount() {
	if d.active != nil {
		d.active.ResetTokenCount()
	}
}

// configure applies the stored settings. Transient adapters process exactly
// one call and are discarded, so they never track context.
func (d *Dispatcher) configure(adapter llm.Adapter, withContext bool) {
	if d.settings.SystemPrompt != "" {
		adapter.SetSystemPrompt(d.settings.SystemPrompt)
	}
	if d.settings.ActionSpace != nil {
		adapter.SetActionSpace(d.settings.ActionSpace)
	}
	if d.settings.ActionSpaceType != "" {
		adapter.SetActionSpaceType(d.settings.ActionSpaceType)
	}
	if withContext {
		adapter.SetMaxContextMessages(d.settings.MaxContext)
	}
}
