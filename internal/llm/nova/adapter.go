// Package nova implements the adapter for Amazon Nova family models, which
// use role-tagged content-part arrays and an inferenceConfig block.
package nova

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/larsll/deepracer-llm-agent/internal/extract"
	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/llm"
	"github.com/larsll/deepracer-llm-agent/internal/models"
)

const defaultMaxNewTokens = 1000

// Adapter converts prompts into Nova's content-part message envelope.
type Adapter struct {
	llm.Core
}

// New constructs a Nova adapter for the given model ID.
func New(modelID string, inv invoke.Invoker, opts llm.Options) *Adapter {
	return &Adapter{Core: llm.NewCore(modelID, inv, opts)}
}

// Family identifies the vendor family.
func (a *Adapter) Family() llm.Family {
	return llm.FamilyNova
}

type request struct {
	InferenceConfig inferenceConfig `json:"inferenceConfig"`
	Messages        []message       `json:"messages"`
}

type inferenceConfig struct {
	MaxNewTokens int `json:"max_new_tokens"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Text  string     `json:"text,omitempty"`
	Image *imagePart `json:"image,omitempty"`
}

type imagePart struct {
	Format string      `json:"format"`
	Source imageSource `json:"source"`
}

type imageSource struct {
	Bytes string `json:"bytes"`
}

type response struct {
	Output *struct {
		Message *struct {
			Content []contentPart `json:"content"`
		} `json:"message"`
	} `json:"output"`
	Usage usageBlock `json:"usage"`
}

type usageBlock struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

func userMessage(prompt, imageB64 string) message {
	content := []contentPart{{Text: prompt}}
	if imageB64 != "" {
		content = append(content, contentPart{
			Image: &imagePart{
				Format: "jpeg",
				Source: imageSource{Bytes: imageB64},
			},
		})
	}
	return message{Role: models.RoleUser, Content: content}
}

// buildRequest serialises system prompt, action space, bounded history and
// the current user turn into Nova's native envelope. Nova has no system
// role, so the preamble rides in a leading user message, with the action
// space attached as a JSON object part.
func (a *Adapter) buildRequest(history []models.Message, prompt, imageB64 string) request {
	preamble := message{
		Role: models.RoleUser,
		Content: []contentPart{
			{Text: a.SystemPrompt()},
		},
	}
	if blob, ok := a.ActionSpaceJSON(); ok {
		preamble.Content = append(preamble.Content, contentPart{Text: blob})
	}

	messages := []message{preamble}
	for _, msg := range history {
		messages = append(messages, message{
			Role:    msg.Role,
			Content: []contentPart{{Text: msg.Content}},
		})
	}
	messages = append(messages, userMessage(prompt, imageB64))

	return request{
		InferenceConfig: inferenceConfig{MaxNewTokens: a.MaxTokens(defaultMaxNewTokens)},
		Messages:        messages,
	}
}

// extractResponseText pulls the reply text out of Nova's nested envelope and
// appends the assistant turn to the conversation context. Nova responses
// missing the expected structure are a protocol error.
func (a *Adapter) extractResponseText(resp response) (string, error) {
	if resp.Output == nil || resp.Output.Message == nil || len(resp.Output.Message.Content) == 0 {
		return "", fmt.Errorf("%w: nova response missing output.message.content", llm.ErrProtocol)
	}

	reply := resp.Output.Message.Content[0].Text
	a.Remember(models.RoleAssistant, reply)
	return reply, nil
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
		return nil, fmt.Errorf("%w: decode nova response: %v", llm.ErrProtocol, err)
	}

	responseText, err := a.extractResponseText(resp)
	if err != nil {
		return nil, err
	}
	a.AddUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	action, err := extract.JSON(responseText)
	if err != nil {
		return nil, fmt.Errorf("nova response: %w", err)
	}
	return action, nil
}
