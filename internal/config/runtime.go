package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables consumed by the runtime configuration. All are
// optional and carry hardcoded fallbacks.
const (
	EnvRegion              = "AWS_REGION"
	EnvDefaultModelID      = "DEFAULT_MODEL_ID"
	EnvInferenceProfileARN = "INFERENCE_PROFILE_ARN"
	EnvMaxTokens           = "MAX_TOKENS"
)

const (
	defaultRegion  = "eu-central-1"
	defaultModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	defaultPort    = 8080
)

// Runtime is the optional agent configuration file, layered under
// environment overrides.
type Runtime struct {
	Region       string       `yaml:"region"`
	ModelID      string       `yaml:"model_id"`
	MaxNewTokens int          `yaml:"max_new_tokens"`
	Invoke       InvokeConfig `yaml:"invoke"`
	Server       ServerConfig `yaml:"server"`
}

// InvokeConfig points the HTTP invoker at a model invocation endpoint.
type InvokeConfig struct {
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers"`
}

// ServerConfig defines the serve-mode listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultRuntime returns the built-in configuration.
func DefaultRuntime() Runtime {
	return Runtime{
		Region: defaultRegion,
		Server: ServerConfig{Port: defaultPort},
	}
}

// LoadRuntime builds the runtime configuration: defaults, then the YAML
// file at path when it exists, then environment overrides. An empty path
// skips the file layer.
func LoadRuntime(path string) (Runtime, error) {
	cfg := DefaultRuntime()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file, fall through to env overrides.
		case err != nil:
			return Runtime{}, fmt.Errorf("read runtime config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Runtime{}, fmt.Errorf("parse runtime config %q: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Runtime{}, err
	}
	return cfg, nil
}

func (r *Runtime) applyEnv() {
	if v := os.Getenv(EnvRegion); v != "" {
		r.Region = v
	}
	if v := os.Getenv(EnvInferenceProfileARN); v != "" {
		r.ModelID = v
	} else if v := os.Getenv(EnvDefaultModelID); v != "" && r.ModelID == "" {
		r.ModelID = v
	}
	if v := os.Getenv(EnvMaxTokens); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			r.MaxNewTokens = n
		}
	}
}

// Validate performs sanity checks on the assembled configuration.
func (r Runtime) Validate() error {
	if r.Server.Port <= 0 || r.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", r.Server.Port)
	}
	if r.MaxNewTokens < 0 {
		return fmt.Errorf("max_new_tokens must not be negative, got %d", r.MaxNewTokens)
	}
	return nil
}

// InvokeBaseURL returns the configured invocation endpoint, defaulting to
// the regional model runtime endpoint.
func (r Runtime) InvokeBaseURL() string {
	if r.Invoke.BaseURL != "" {
		return r.Invoke.BaseURL
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", r.Region)
}

// FallbackModelID resolves the model identifier used when metadata does not
// name one: environment overrides first, then the hardcoded default.
func (r Runtime) FallbackModelID() string {
	if r.ModelID != "" {
		return r.ModelID
	}
	return defaultModelID
}
