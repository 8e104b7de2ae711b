// Package llm defines the capability set shared by every vendor adapter
// and the state common to all of them: bounded conversation memory,
// monotonic token counters, and prompt configuration.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/larsll/deepracer-llm-agent/internal/actionspace"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

var (
	// ErrUnsupportedModel indicates that no vendor family matches a model ID.
	ErrUnsupportedModel = errors.New("unsupported model type")

	// ErrNoActiveModel indicates a process call without an active adapter.
	ErrNoActiveModel = errors.New("no model specified and no active model set")

	// ErrProtocol indicates a vendor response missing expected fields.
	ErrProtocol = errors.New("unexpected model response structure")
)

// Family identifies one supported vendor family.
type Family string

const (
	FamilyClaude  Family = "claude"
	FamilyMistral Family = "mistral"
	FamilyLlama   Family = "llama"
	FamilyNova    Family = "nova"
)

// Adapter converts a logical prompt/image pair into one vendor's wire
// format and back. Implementations own their conversation context and
// token counters exclusively.
type Adapter interface {
	Family() Family
	ModelID() string

	SetSystemPrompt(prompt string)
	SetMaxContextMessages(n int)
	SetActionSpace(raw json.RawMessage)
	SetActionSpaceType(t actionspace.Type)
	ClearConversation()

	// Process composes the adapter protocol: append the user turn to the
	// conversation (when memory is enabled), build the vendor request,
	// invoke, extract the reply text, update token counters, and return
	// the raw JSON parsed from the reply. Validation and normalisation
	// happen one layer up.
	Process(ctx context.Context, prompt, imageB64 string) (any, error)

	TokenUsage() models.TokenUsage
	ResetTokenCount()
}

// Options carries construction-time tuning shared by all adapters.
type Options struct {
	// MaxTokens caps generated tokens per reply. Zero selects the
	// vendor default.
	MaxTokens int
	// Temperature is the sampling temperature. Driving decisions want 0.
	Temperature float64
}

// Settings is the prompt configuration applied to an adapter. The zero
// value matches a freshly constructed adapter.
type Settings struct {
	SystemPrompt    string
	MaxContext      int
	ActionSpace     json.RawMessage
	ActionSpaceType actionspace.Type
}

// DefaultSystemPrompt is used until a metadata-supplied prompt replaces it.
const DefaultSystemPrompt = "You are an AI driver assistant."
