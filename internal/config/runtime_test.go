package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRuntimeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvRegion, EnvDefaultModelID, EnvInferenceProfileARN, EnvMaxTokens} {
		t.Setenv(key, "")
	}
}

func TestLoadRuntimeDefaults(t *testing.T) {
	clearRuntimeEnv(t)
	cfg, err := LoadRuntime("")
	require.NoError(t, err)

	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://bedrock-runtime.eu-central-1.amazonaws.com", cfg.InvokeBaseURL())
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", cfg.FallbackModelID())
}

func TestLoadRuntimeFromFile(t *testing.T) {
	clearRuntimeEnv(t)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
region: us-east-1
model_id: amazon.nova-lite-v1:0
max_new_tokens: 400
invoke:
  base_url: http://localhost:9000
  headers:
    Authorization: Bearer token
server:
  port: 9090
`), 0o644))

	cfg, err := LoadRuntime(path)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "amazon.nova-lite-v1:0", cfg.FallbackModelID())
	assert.Equal(t, 400, cfg.MaxNewTokens)
	assert.Equal(t, "http://localhost:9000", cfg.InvokeBaseURL())
	assert.Equal(t, "Bearer token", cfg.Invoke.Headers["Authorization"])
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRuntimeMissingFileUsesDefaults(t *testing.T) {
	clearRuntimeEnv(t)
	cfg, err := LoadRuntime(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntime().Region, cfg.Region)
}

func TestLoadRuntimeEnvOverrides(t *testing.T) {
	clearRuntimeEnv(t)
	t.Setenv(EnvRegion, "ap-southeast-2")
	t.Setenv(EnvMaxTokens, "321")
	t.Setenv(EnvDefaultModelID, "meta.llama3-70b-instruct-v1:0")

	cfg, err := LoadRuntime("")
	require.NoError(t, err)

	assert.Equal(t, "ap-southeast-2", cfg.Region)
	assert.Equal(t, 321, cfg.MaxNewTokens)
	assert.Equal(t, "meta.llama3-70b-instruct-v1:0", cfg.FallbackModelID())
}

func TestLoadRuntimeInferenceProfileWins(t *testing.T) {
	t.Setenv(EnvDefaultModelID, "meta.llama3-70b-instruct-v1:0")
	t.Setenv(EnvInferenceProfileARN, "arn:aws:bedrock:eu-central-1:123456789012:inference-profile/eu.anthropic.claude-3-sonnet-20240229-v1:0")

	cfg, err := LoadRuntime("")
	require.NoError(t, err)
	assert.Contains(t, cfg.FallbackModelID(), "inference-profile")
}

func TestRuntimeValidate(t *testing.T) {
	cfg := DefaultRuntime()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultRuntime()
	cfg.MaxNewTokens = -1
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultRuntime().Validate())
}
