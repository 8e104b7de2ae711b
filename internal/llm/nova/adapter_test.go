package nova

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsll/deepracer-llm-agent/internal/invoke"
	"github.com/larsll/deepracer-llm-agent/internal/llm"
)

func stub(body string, captured *[]byte) invoke.Invoker {
	return invoke.Func(func(_ context.Context, _ string, payload []byte) ([]byte, error) {
		if captured != nil {
			*captured = payload
		}
		return []byte(body), nil
	})
}

func TestProcessBuildsEnvelopeAndParsesReply(t *testing.T) {
	var payload []byte
	a := New("amazon.nova-lite-v1:0", stub(`{
		"output": {"message": {"content": [{"text": "{\"steering_angle\": 25, \"speed\": 3}"}]}},
		"usage": {"inputTokens": 200, "outputTokens": 30}
	}`, &payload), llm.Options{MaxTokens: 500})
	a.SetSystemPrompt("You drive.")
	a.SetActionSpace([]byte(`[{"steering_angle":0,"speed":1}]`))
	a.SetActionSpaceType("discrete")

	result, err := a.Process(context.Background(), "Analyze this image.", "aW1hZ2U=")
	require.NoError(t, err)

	obj, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 25.0, obj["steering_angle"])
	assert.Equal(t, 3.0, obj["speed"])

	var req struct {
		InferenceConfig struct {
			MaxNewTokens int `json:"max_new_tokens"`
		} `json:"inferenceConfig"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Text  string `json:"text"`
				Image *struct {
					Format string `json:"format"`
					Source struct {
						Bytes string `json:"bytes"`
					} `json:"source"`
				} `json:"image"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(payload, &req))

	assert.Equal(t, 500, req.InferenceConfig.MaxNewTokens)

	// No system role: the preamble rides in a leading user message, and
	// the action space travels as a JSON object part.
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[0].Role)
	require.Len(t, req.Messages[0].Content, 2)
	assert.Equal(t, "You drive.", req.Messages[0].Content[0].Text)

	var spacePart struct {
		ActionSpaceType string          `json:"action_space_type"`
		ActionSpace     json.RawMessage `json:"action_space"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Messages[0].Content[1].Text), &spacePart))
	assert.Equal(t, "discrete", spacePart.ActionSpaceType)
	assert.JSONEq(t, `[{"steering_angle":0,"speed":1}]`, string(spacePart.ActionSpace))

	user := req.Messages[1]
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, "Analyze this image.", user.Content[0].Text)
	require.NotNil(t, user.Content[1].Image)
	assert.Equal(t, "jpeg", user.Content[1].Image.Format)
	assert.Equal(t, "aW1hZ2U=", user.Content[1].Image.Source.Bytes)

	usage := a.TokenUsage()
	assert.Equal(t, 200, usage.InputTokens)
	assert.Equal(t, 30, usage.OutputTokens)
}

func TestProcessMissingOutputStructure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no output", `{"usage": {"inputTokens": 1, "outputTokens": 1}}`},
		{"no message", `{"output": {}}`},
		{"empty content", `{"output": {"message": {"content": []}}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New("amazon.nova-lite-v1:0", stub(tc.body, nil), llm.Options{})
			_, err := a.Process(context.Background(), "go", "")
			assert.ErrorIs(t, err, llm.ErrProtocol)
		})
	}
}

func TestProcessCarriesHistory(t *testing.T) {
	var payload []byte
	a := New("amazon.nova-pro-v1:0", stub(`{
		"output": {"message": {"content": [{"text": "{\"steering_angle\": 0, \"speed\": 1}"}]}},
		"usage": {}
	}`, &payload), llm.Options{})
	a.SetMaxContextMessages(4)

	_, err := a.Process(context.Background(), "frame one", "")
	require.NoError(t, err)
	_, err = a.Process(context.Background(), "frame two", "")
	require.NoError(t, err)

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(payload, &req))

	require.Len(t, req.Messages, 4)
	assert.Equal(t, "frame one", req.Messages[1].Content[0].Text)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "frame two", req.Messages[3].Content[0].Text)
}
