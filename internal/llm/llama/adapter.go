// Package llama implements the adapter for Meta Llama family models, which
// take a single special-token-delimited flat prompt instead of structured
// message arrays.
package llama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/larsll/deepracer-llm-agent/internal/extract"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/llm"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

const defaultMaxGenLen = 1024

// Adapter converts prompts into Llama's flat-prompt envelope.
type Adapter struct {
	llm.Core
}

// New constructs a Llama adapter for the given model ID.
func New(modelID string, inv invoke.Invoker, opts llm.Options) *Adapter {
	return &Adapter{Core: llm.NewCore(modelID, inv, opts)}
}

// Family identifies the vendor family.
func (a *Adapter) Family() llm.Family {
	return llm.FamilyLlama
}

type request struct {
	Prompt      string   `json:"prompt"`
	MaxGenLen   int      `json:"max_gen_len"`
	Temperature float64  `json:"temperature"`
	ImageData   []string `json:"image_data,omitempty"`
}

type response struct {
	Generation string     `json:"generation"`
	Usage      usageBlock `json:"usage"`
}

// Different Llama releases report usage under different field names; all
// known aliases are decoded and the first non-zero one wins.
type usageBlock struct {
	InputTokens     int `json:"input_tokens"`
	PromptTokens    int `json:"prompt_tokens"`
	OutputTokens    int `json:"output_tokens"`
	GeneratedTokens int `json:"generated_tokens"`
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
	return u.GeneratedTokens
}

// buildRequest flattens system prompt, action space, bounded history and the
// current user turn into Llama's special-token prompt format.
func (a *Adapter) buildRequest(history []models.Message, prompt, imageB64 string) request {
	var b strings.Builder

	b.WriteString("<|system|>\n")
	b.WriteString(a.SystemPrompt())
	b.WriteString("\n")
	if text, ok := a.ActionSpaceText(); ok {
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	b.WriteString("</s>\n")

	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			fmt.Fprintf(&b, "<|user|>\n%s\n</s>\n", msg.Content)
		case models.RoleAssistant:
			fmt.Fprintf(&b, "<|assistant|>\n%s\n</s>\n", msg.Content)
		}
	}

	fmt.Fprintf(&b, "<|user|>\n%s\n</s>\n", prompt)
	b.WriteString("<|assistant|>\n")

	req := request{
		Prompt:      b.String(),
		MaxGenLen:   a.MaxTokens(defaultMaxGenLen),
		Temperature: a.Temperature(),
	}
	if imageB64 != "" {
		req.ImageData = []string{imageB64}
	}
	return req
}

// Process sends one prompt/image pair to the model and returns the raw JSON
// parsed from its reply.
func (a *Adapter) Process(ctx context.Context, prompt, imageB64 string) (any, error) {
	history := a.History()
	a.Remember(models.RoleUser, prompt)

	body, err := a.Call(ctx, a.buildRequest(history, prompt, imageB64))
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode llama response: %v", llm.ErrProtocol, err)
	}

	a.Remember(models.RoleAssistant, resp.Generation)
	a.AddUsage(resp.Usage.input(), resp.Usage.output())

	action, err := extract.JSON(resp.Generation)
	if err != nil {
		return nil, fmt.Errorf("llama response: %w", err)
	}
	return action, nil
}
