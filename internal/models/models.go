package models

import "encoding/json"

// Message represents a single conversational turn in the unified schema.
// Vendor adapters re-encode it into their native envelope on each request.
type Message struct {
	Role    string
	Content string
}

// Conversation roles shared by every vendor family.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TokenUsage records cumulative token accounting for one adapter.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined input and output token count.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// DrivingAction is the validated control output for a single frame.
// Extra carries vendor-supplied fields that are passed through untouched.
type DrivingAction struct {
	SteeringAngle float64
	Speed         float64
	Fallback      bool
	Error         string
	Extra         map[string]any
}

// MarshalJSON flattens Extra alongside the canonical fields so the wire
// shape matches what callers received from the model, plus normalisation.
func (a DrivingAction) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+4)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["steering_angle"] = a.SteeringAngle
	out["speed"] = a.Speed
	if a.Fallback {
		out["fallback"] = true
	}
	if a.Error != "" {
		out["error"] = a.Error
	}
	return json.Marshal(out)
}
