// Package mistral implements the adapter for Mistral family models, which
// take an instruction-token flat prompt and reply under an outputs array.
package mistral

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/larsll/deepracer-llm-agent/internal/extract"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/llm"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

const defaultMaxTokens = 1024

// Adapter converts prompts into Mistral's instruction-token envelope.
type Adapter struct {
	llm.Core
}

// New constructs a Mistral adapter for the given model ID.
func New(modelID string, inv invoke.Invoker, opts llm.Options) *Adapter {
	return &Adapter{Core: llm.NewCore(modelID, inv, opts)}
}

// Family identifies the vendor family.
func (a *Adapter) Family() llm.Family {
	return llm.FamilyMistral
}

type request struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type response struct {
	Outputs []output   `json:"outputs"`
	Usage   usageBlock `json:"usage"`
}

type output struct {
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
}

type usageBlock struct {
	InputTokens      int `json:"input_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u usageBlock) input() int {
	if u.InputTokens != 0 {
		return u.InputTokens
	}
	return u.PromptTokens
}

func (u usageBlock) output() int {
	if u.OutputTokens != 0 {
		return u.OutputTokens
	}
	return u.CompletionTokens
}

// buildRequest flattens system prompt, action space, bounded history and the
// current user turn into Mistral's [INST] prompt format. The preamble rides
// in the first instruction block.
func (a *Adapter) buildRequest(history []models.Message, prompt string) request {
	preamble := a.SystemPrompt()
	if text, ok := a.ActionSpaceText(); ok {
		preamble += "\n\n" + text
	}

	var b strings.Builder
	b.WriteString("<s>")

	first := true
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			content := msg.Content
			if first {
				content = preamble + "\n\n" + content
				first = false
			}
			fmt.Fprintf(&b, "[INST] %s [/INST]", content)
		case models.RoleAssistant:
			fmt.Fprintf(&b, " %s</s>", msg.Content)
		}
	}

	current := prompt
	if first {
		current = preamble + "\n\n" + current
	}
	fmt.Fprintf(&b, "[INST] %s [/INST]", current)

	return request{
		Prompt:      b.String(),
		MaxTokens:   a.MaxTokens(defaultMaxTokens),
		Temperature: a.Temperature(),
	}
}

// extractResponseText pulls the reply text out of Mistral's outputs array
// and appends the assistant turn to the conversation context.
func (a *Adapter) extractResponseText(resp response) (string, error) {
	if len(resp.Outputs) == 0 {
		return "", fmt.Errorf("%w: mistral response missing outputs", llm.ErrProtocol)
	}

	reply := resp.Outputs[0].Text
	a.Remember(models.RoleAssistant, reply)
	return reply, nil
}

// Process sends one prompt to the model and returns the raw JSON parsed from
// its reply. Mistral text models take no image input; the frame is dropped
// from the request.
func (a *Adapter) Process(ctx context.Context, prompt, imageB64 string) (any, error) {
	if imageB64 != "" {
		slog.Debug("mistral models accept text only, sending prompt without image")
	}

	history := a.History()
	a.Remember(models.RoleUser, prompt)

	body, err := a.Call(ctx, a.buildRequest(history, prompt))
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode mistral response: %v", llm.ErrProtocol, err)
	}

	responseText, err := a.extractResponseText(resp)
	if err != nil {
		return nil, err
	}
	a.AddUsage(resp.Usage.input(), resp.Usage.output())

	action, err := extract.JSON(responseText)
	if err != nil {
		return nil, fmt.Errorf("mistral response: %w", err)
	}
	return action, nil
}
