// Package claude implements the adapter for Anthropic Claude family models.
package claude

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

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 1024
	imageMediaType   = "image/jpeg"
)

// Adapter converts prompts into Claude's content-block message envelope.
type Adapter struct {
	llm.Core
}

// New constructs a Claude adapter for the given model ID.
func New(modelID string, inv invoke.Invoker, opts llm.Options) *Adapter {
	return &Adapter{Core: llm.NewCore(modelID, inv, opts)}
}

// Family identifies the vendor family.
func (a *Adapter) Family() llm.Family {
	return llm.FamilyClaude
}

type request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type response struct {
	Content []contentBlock `json:"content"`
	Usage   usageBlock     `json:"usage"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// buildRequest serialises system prompt, action space, bounded history and
// the current user turn into Claude's native envelope.
func (a *Adapter) buildRequest(history []models.Message, prompt, imageB64 string) request {
	systemContent := []contentBlock{{Type: "text", Text: a.SystemPrompt()}}
	if text, ok := a.ActionSpaceText(); ok {
		systemContent = append(systemContent, contentBlock{Type: "text", Text: text})
	}

	messages := []message{{Role: "system", Content: systemContent}}

	for _, msg := range history {
		messages = append(messages, message{
			Role:    msg.Role,
			Content: []contentBlock{{Type: "text", Text: msg.Content}},
		})
	}

	userContent := []contentBlock{{Type: "text", Text: prompt}}
	if imageB64 != "" {
		userContent = append(userContent, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: imageMediaType,
				Data:      imageB64,
			},
		})
	}
	messages = append(messages, message{Role: models.RoleUser, Content: userContent})

	return request{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        a.MaxTokens(defaultMaxTokens),
		Temperature:      a.Temperature(),
		Messages:         messages,
	}
}

// extractResponseText concatenates the text blocks of the reply and appends
// the assistant turn to the conversation context.
func (a *Adapter) extractResponseText(resp response) string {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	reply := text.String()
	a.Remember(models.RoleAssistant, reply)
	return reply
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
		return nil, fmt.Errorf("%w: decode claude response: %v", llm.ErrProtocol, err)
	}

	responseText := a.extractResponseText(resp)
	a.AddUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	action, err := extract.JSON(responseText)
	if err != nil {
		return nil, fmt.Errorf("claude response: %w", err)
	}
	return action, nil
}
