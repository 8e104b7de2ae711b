package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/larsll/deepracer-llm-agent/internal/actionspace"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

// Core holds the state and behaviour every vendor adapter shares. Vendor
// packages embed it and add their wire-format specifics on top.
type Core struct {
	modelID  string
	opts     Options
	settings Settings
	conv     *Conversation
	usage    models.TokenUsage
	invoker  invoke.Invoker
}

// NewCore initialises shared adapter state with library defaults.
func NewCore(modelID string, inv invoke.Invoker, opts Options) Core {
	return Core{
		modelID: modelID,
		opts:    opts,
		settings: Settings{
			SystemPrompt: DefaultSystemPrompt,
		},
		conv:    NewConversation(0),
		invoker: inv,
	}
}

// ModelID returns the vendor model identifier this adapter targets.
func (c *Core) ModelID() string {
	return c.modelID
}

// SetSystemPrompt replaces the system prompt sent with every request.
func (c *Core) SetSystemPrompt(prompt string) {
	c.settings.SystemPrompt = prompt
}

// SetMaxContextMessages sets the conversation context window in turns.
func (c *Core) SetMaxContextMessages(n int) {
	if n < 0 {
		n = 0
	}
	c.settings.MaxContext = n
	c.conv.SetWindow(n)
}

// SetActionSpace stores the raw action space declaration for prompting.
func (c *Core) SetActionSpace(raw json.RawMessage) {
	c.settings.ActionSpace = raw
}

// SetActionSpaceType stores the action space type for prompting.
func (c *Core) SetActionSpaceType(t actionspace.Type) {
	c.settings.ActionSpaceType = t
}

// ApplySettings installs a full prompt configuration in one call.
func (c *Core) ApplySettings(s Settings) {
	c.settings.SystemPrompt = s.SystemPrompt
	c.settings.ActionSpace = s.ActionSpace
	c.settings.ActionSpaceType = s.ActionSpaceType
	c.SetMaxContextMessages(s.MaxContext)
}

// ClearConversation discards the retained conversation context.
func (c *Core) ClearConversation() {
	c.conv.Clear()
}

// TokenUsage returns the accumulated token counters.
func (c *Core) TokenUsage() models.TokenUsage {
	return c.usage
}

// ResetTokenCount zeroes the token counters.
func (c *Core) ResetTokenCount() {
	c.usage = models.TokenUsage{}
}

// AddUsage accumulates token deltas from one response.
func (c *Core) AddUsage(input, output int) {
	c.usage.InputTokens += input
	c.usage.OutputTokens += output
}

// SystemPrompt returns the configured system prompt.
func (c *Core) SystemPrompt() string {
	return c.settings.SystemPrompt
}

// ContextEnabled reports whether conversation memory is active.
func (c *Core) ContextEnabled() bool {
	return c.settings.MaxContext > 0
}

// History returns the retained conversation, oldest first.
func (c *Core) History() []models.Message {
	return c.conv.Messages()
}

// Remember appends a message to the conversation when memory is enabled.
func (c *Core) Remember(role, content string) {
	if !c.ContextEnabled() {
		return
	}
	c.conv.Append(models.Message{Role: role, Content: content})
}

// ActionSpaceText renders the action space description for the system
// prompt. The second return is false until both the space and its type
// have been configured.
func (c *Core) ActionSpaceText() (string, bool) {
	if c.settings.ActionSpace == nil || c.settings.ActionSpaceType == "" {
		return "", false
	}
	return fmt.Sprintf("Action space type: %s\nAction space: %s",
		c.settings.ActionSpaceType, c.settings.ActionSpace), true
}

// ActionSpaceJSON renders the action space as a JSON object for adapters
// whose wire convention embeds the declaration as structured data rather
// than prose. The second return is false until both the space and its type
// have been configured.
func (c *Core) ActionSpaceJSON() (string, bool) {
	if c.settings.ActionSpace == nil || c.settings.ActionSpaceType == "" {
		return "", false
	}

	blob, err := json.Marshal(struct {
		ActionSpaceType actionspace.Type `json:"action_space_type"`
		ActionSpace     json.RawMessage  `json:"action_space"`
	}{c.settings.ActionSpaceType, c.settings.ActionSpace})
	if err != nil {
		return "", false
	}
	return string(blob), true
}

// MaxTokens resolves the per-reply token cap against a vendor default.
func (c *Core) MaxTokens(vendorDefault int) int {
	if c.opts.MaxTokens > 0 {
		return c.opts.MaxTokens
	}
	return vendorDefault
}

// Temperature returns the configured sampling temperature.
func (c *Core) Temperature() float64 {
	return c.opts.Temperature
}

// Call marshals the request envelope, performs the blocking invocation and
// returns the raw response body.
func (c *Core) Call(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}

	resp, err := c.invoker.Invoke(ctx, c.modelID, body)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
