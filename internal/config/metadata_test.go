package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const llmMetadataJSON = `{
	"action_space": {
		"steering_angle": {"low": -30, "high": 30},
		"speed": {"low": 0.5, "high": 4.0}
	},
	"action_space_type": "continuous",
	"sensor": ["FRONT_FACING_CAMERA"],
	"neural_network": "LLM",
	"version": "5",
	"llm_config": {
		"model_id": "anthropic.claude-3-sonnet-20240229-v1:0",
		"max_tokens": 500,
		"system_prompt": "You drive a race car.",
		"repeated_prompt": "Pick the next action.",
		"context_window": 5
	}
}`

func TestLoadMetadataLLM(t *testing.T) {
	meta, err := LoadMetadata(writeMetadata(t, llmMetadataJSON))
	require.NoError(t, err)

	assert.True(t, meta.IsLLM())
	require.NotNil(t, meta.LLMConfig)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", meta.LLMConfig.ModelID)
	assert.Equal(t, 500, *meta.LLMConfig.MaxTokens)
	assert.Equal(t, 5, *meta.LLMConfig.ContextWindow)
	assert.Equal(t, Prompt("You drive a race car."), meta.LLMConfig.SystemPrompt)
}

func TestLoadMetadataTraditionalNetwork(t *testing.T) {
	meta, err := LoadMetadata(writeMetadata(t, `{
		"action_space": [{"steering_angle": 0, "speed": 1}],
		"sensor": ["FRONT_FACING_CAMERA"],
		"neural_network": "DEEP_CONVOLUTIONAL_NETWORK_SHALLOW",
		"training_algorithm": "clipped_ppo"
	}`))
	require.NoError(t, err)
	assert.False(t, meta.IsLLM())
}

func TestLoadMetadataMissingFile(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestMetadataValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{broken`},
		{"missing action space", `{
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "DEEP_CONVOLUTIONAL_NETWORK",
			"training_algorithm": "clipped_ppo"
		}`},
		{"null action space", `{
			"action_space": null,
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "DEEP_CONVOLUTIONAL_NETWORK",
			"training_algorithm": "clipped_ppo"
		}`},
		{"missing sensor", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"neural_network": "DEEP_CONVOLUTIONAL_NETWORK",
			"training_algorithm": "clipped_ppo"
		}`},
		{"missing neural network", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"]
		}`},
		{"traditional network without training algorithm", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "DEEP_CONVOLUTIONAL_NETWORK"
		}`},
		{"llm without llm_config", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "LLM"
		}`},
		{"llm_config missing model_id", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "LLM",
			"llm_config": {"max_tokens": 500, "system_prompt": "x", "context_window": 0}
		}`},
		{"llm_config zero max_tokens", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "LLM",
			"llm_config": {"model_id": "m.claude", "max_tokens": 0, "system_prompt": "x", "context_window": 0}
		}`},
		{"llm_config missing system_prompt", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "LLM",
			"llm_config": {"model_id": "m.claude", "max_tokens": 500, "context_window": 0}
		}`},
		{"llm_config negative context_window", `{
			"action_space": [{"steering_angle": 0, "speed": 1}],
			"sensor": ["FRONT_FACING_CAMERA"],
			"neural_network": "LLM",
			"llm_config": {"model_id": "m.claude", "max_tokens": 500, "system_prompt": "x", "context_window": -1}
		}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadMetadata(writeMetadata(t, tc.json))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPromptAcceptsStringList(t *testing.T) {
	var p Prompt
	require.NoError(t, json.Unmarshal([]byte(`["line one", "line two"]`), &p))
	assert.Equal(t, Prompt("line one\nline two"), p)

	require.NoError(t, json.Unmarshal([]byte(`"single"`), &p))
	assert.Equal(t, Prompt("single"), p)

	assert.ErrorIs(t, json.Unmarshal([]byte(`42`), &p), ErrValidation)
}
