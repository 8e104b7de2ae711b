// Package config loads the model metadata contract and the optional
// runtime configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/larsll/deepracer-llm-agent/internal/actionspace"
)

// ErrValidation indicates malformed or missing model metadata. Metadata
// failures are fatal at startup.
var ErrValidation = errors.New("invalid model metadata")

// NeuralNetworkType enumerates the supported policy types.
type NeuralNetworkType string

const (
	NetworkShallowCNN NeuralNetworkType = "DEEP_CONVOLUTIONAL_NETWORK_SHALLOW"
	NetworkCNN        NeuralNetworkType = "DEEP_CONVOLUTIONAL_NETWORK"
	NetworkLLM        NeuralNetworkType = "LLM"
)

// SensorType enumerates the supported camera and range sensors.
type SensorType string

const (
	SensorFrontFacingCamera SensorType = "FRONT_FACING_CAMERA"
	SensorStereoCameras     SensorType = "STEREO_CAMERAS"
	SensorLidar             SensorType = "LIDAR"
)

// Prompt accepts either a JSON string or a list of strings joined with
// newlines, matching both metadata file dialects in the wild.
type Prompt string

// UnmarshalJSON implements json.Unmarshaler.
func (p *Prompt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Prompt(s)
		return nil
	}

	var parts []string
	if err := json.Unmarshal(data, &parts); err == nil {
		*p = Prompt(strings.Join(parts, "\n"))
		return nil
	}

	return fmt.Errorf("%w: system_prompt must be a string or a list of strings", ErrValidation)
}

// LLMConfig configures an LLM-driven policy.
type LLMConfig struct {
	ModelID        string `json:"model_id"`
	MaxTokens      *int   `json:"max_tokens"`
	SystemPrompt   Prompt `json:"system_prompt"`
	RepeatedPrompt string `json:"repeated_prompt"`
	ContextWindow  *int   `json:"context_window"`
}

// Metadata is the model metadata file contract. The action space is kept
// raw here; the actionspace package parses and validates it.
type Metadata struct {
	ActionSpace       json.RawMessage  `json:"action_space"`
	ActionSpaceType   actionspace.Type `json:"action_space_type,omitempty"`
	Sensor            []SensorType     `json:"sensor"`
	NeuralNetwork     NeuralNetworkType `json:"neural_network"`
	TrainingAlgorithm string           `json:"training_algorithm,omitempty"`
	Version           string           `json:"version,omitempty"`
	LLMConfig         *LLMConfig       `json:"llm_config,omitempty"`
}

// LoadMetadata reads and validates a model metadata file. Any failure here
// is fatal to startup: no frame can be processed safely without a valid
// action space.
func LoadMetadata(path string) (Metadata, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("resolve metadata path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("read model metadata %q: %w", absPath, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse %q: %v", ErrValidation, absPath, err)
	}

	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Validate performs strict sanity checks on the metadata.
func (m Metadata) Validate() error {
	if len(m.ActionSpace) == 0 || string(m.ActionSpace) == "null" {
		return fmt.Errorf("%w: missing action_space", ErrValidation)
	}
	if m.Sensor == nil {
		return fmt.Errorf("%w: missing or invalid sensor configuration", ErrValidation)
	}
	if m.NeuralNetwork == "" {
		return fmt.Errorf("%w: missing neural_network", ErrValidation)
	}

	if m.NeuralNetwork == NetworkLLM {
		if m.LLMConfig == nil {
			return fmt.Errorf("%w: LLM neural network type requires llm_config", ErrValidation)
		}
		if err := m.LLMConfig.validate(); err != nil {
			return err
		}
	} else if m.TrainingAlgorithm == "" {
		return fmt.Errorf("%w: missing training_algorithm for traditional neural network", ErrValidation)
	}

	return nil
}

func (c LLMConfig) validate() error {
	if strings.TrimSpace(c.ModelID) == "" {
		return fmt.Errorf("%w: missing model_id in llm_config", ErrValidation)
	}
	if c.MaxTokens == nil || *c.MaxTokens <= 0 {
		return fmt.Errorf("%w: missing or invalid max_tokens in llm_config", ErrValidation)
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("%w: missing or invalid system_prompt in llm_config", ErrValidation)
	}
	if c.ContextWindow == nil || *c.ContextWindow < 0 {
		return fmt.Errorf("%w: invalid context_window in llm_config", ErrValidation)
	}
	return nil
}

// IsLLM reports whether the metadata declares an LLM-driven policy.
func (m Metadata) IsLLM() bool {
	return m.NeuralNetwork == NetworkLLM
}
