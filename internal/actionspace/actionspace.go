package actionspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrValidation indicates a malformed or missing action space declaration.
var ErrValidation = errors.New("invalid action space")

// Type distinguishes discrete action sets from continuous ranges.
type Type string

const (
	Discrete   Type = "discrete"
	Continuous Type = "continuous"
)

// Action is one legal (steering_angle, speed) control pair.
type Action struct {
	SteeringAngle float64 `json:"steering_angle"`
	Speed         float64 `json:"speed"`
}

// Range bounds one continuous axis. Low is strictly less than High.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v falls inside the closed interval.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Clamp forces v into the closed interval.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Low, math.Min(r.High, v))
}

// Space is an immutable, validated action space.
type Space struct {
	typ      Type
	discrete []Action
	steering Range
	speed    Range
	raw      json.RawMessage
}

// New parses and validates a declared action space. An explicit type wins;
// otherwise the type is inferred from the JSON structure (list means
// discrete, object means continuous).
func New(raw json.RawMessage, explicit Type) (*Space, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: action_space is missing", ErrValidation)
	}

	typ := explicit
	switch typ {
	case Discrete, Continuous:
	case "":
		if trimmed[0] == '[' {
			typ = Discrete
		} else {
			typ = Continuous
		}
	default:
		return nil, fmt.Errorf("%w: unknown action_space_type %q", ErrValidation, explicit)
	}

	s := &Space{typ: typ, raw: append(json.RawMessage(nil), trimmed...)}

	switch typ {
	case Discrete:
		if err := s.parseDiscrete(trimmed); err != nil {
			return nil, err
		}
	case Continuous:
		if err := s.parseContinuous(trimmed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Space) parseDiscrete(raw []byte) error {
	type rawAction struct {
		SteeringAngle *float64 `json:"steering_angle"`
		Speed         *float64 `json:"speed"`
	}

	var entries []rawAction
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("%w: discrete action space must be a list: %v", ErrValidation, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: discrete action space must not be empty", ErrValidation)
	}

	s.discrete = make([]Action, 0, len(entries))
	for i, entry := range entries {
		if entry.SteeringAngle == nil || entry.Speed == nil {
			return fmt.Errorf("%w: discrete action %d requires numeric steering_angle and speed", ErrValidation, i)
		}
		s.discrete = append(s.discrete, Action{
			SteeringAngle: *entry.SteeringAngle,
			Speed:         *entry.Speed,
		})
	}
	return nil
}

func (s *Space) parseContinuous(raw []byte) error {
	type rawRange struct {
		Low  *float64 `json:"low"`
		High *float64 `json:"high"`
	}
	type rawSpace struct {
		SteeringAngle *rawRange `json:"steering_angle"`
		Speed         *rawRange `json:"speed"`
	}

	var space rawSpace
	if err := json.Unmarshal(raw, &space); err != nil {
		return fmt.Errorf("%w: continuous action space must be an object: %v", ErrValidation, err)
	}
	if space.SteeringAngle == nil || space.Speed == nil {
		return fmt.Errorf("%w: continuous action space requires steering_angle and speed ranges", ErrValidation)
	}

	ranges := []struct {
		name string
		r    *rawRange
		dst  *Range
	}{
		{"steering_angle", space.SteeringAngle, &s.steering},
		{"speed", space.Speed, &s.speed},
	}
	for _, axis := range ranges {
		if axis.r.Low == nil || axis.r.High == nil {
			return fmt.Errorf("%w: %s range requires numeric low and high", ErrValidation, axis.name)
		}
		if *axis.r.Low >= *axis.r.High {
			return fmt.Errorf("%w: %s range low must be less than high", ErrValidation, axis.name)
		}
		*axis.dst = Range{Low: *axis.r.Low, High: *axis.r.High}
	}
	return nil
}

// Type returns the effective action space type.
func (s *Space) Type() Type {
	return s.typ
}

// Raw returns the original JSON declaration for prompt embedding.
func (s *Space) Raw() json.RawMessage {
	return s.raw
}

// DiscreteActions returns the declared action list, nil for continuous spaces.
func (s *Space) DiscreteActions() []Action {
	if s.typ != Discrete {
		return nil
	}
	out := make([]Action, len(s.discrete))
	copy(out, s.discrete)
	return out
}

// ContinuousRanges returns the steering and speed ranges. The second return
// is false for discrete spaces.
func (s *Space) ContinuousRanges() (steering, speed Range, ok bool) {
	if s.typ != Continuous {
		return Range{}, Range{}, false
	}
	return s.steering, s.speed, true
}

// Describe renders the action space for inclusion in a system prompt.
func (s *Space) Describe() string {
	return fmt.Sprintf("Action space type: %s\nAction space: %s", s.typ, s.raw)
}

// ValidSteeringAngle reports whether the value is legal for this space.
func (s *Space) ValidSteeringAngle(v float64) bool {
	if s.typ == Continuous {
		return s.steering.Contains(v)
	}
	for _, action := range s.discrete {
		if action.SteeringAngle == v {
			return true
		}
	}
	return false
}

// ValidSpeed reports whether the value is legal for this space.
func (s *Space) ValidSpeed(v float64) bool {
	if s.typ == Continuous {
		return s.speed.Contains(v)
	}
	for _, action := range s.discrete {
		if action.Speed == v {
			return true
		}
	}
	return false
}

// ClosestDiscrete returns the declared action minimising Euclidean distance
// to the given pair. Ties resolve to the action declared first.
func (s *Space) ClosestDiscrete(steering, speed float64) Action {
	closest := s.discrete[0]
	minDistance := math.Inf(1)

	for _, action := range s.discrete {
		ds := action.SteeringAngle - steering
		dv := action.Speed - speed
		distance := math.Sqrt(ds*ds + dv*dv)
		if distance < minDistance {
			minDistance = distance
			closest = action
		}
	}
	return closest
}

// Normalize maps an arbitrary (steering, speed) pair onto a legal action.
// Continuous spaces clamp each axis independently; discrete spaces return
// the exact match or the nearest declared action.
func (s *Space) Normalize(steering, speed float64) Action {
	if s.typ == Continuous {
		if !s.steering.Contains(steering) {
			slog.Warn("steering angle exceeds valid range",
				"steering_angle", steering, "low", s.steering.Low, "high", s.steering.High)
		}
		if !s.speed.Contains(speed) {
			slog.Warn("speed exceeds valid range",
				"speed", speed, "low", s.speed.Low, "high", s.speed.High)
		}
		return Action{
			SteeringAngle: s.steering.Clamp(steering),
			Speed:         s.speed.Clamp(speed),
		}
	}

	for _, action := range s.discrete {
		if action.SteeringAngle == steering && action.Speed == speed {
			return action
		}
	}

	slog.Warn("requested action is not in the discrete action space, using closest match",
		"steering_angle", steering, "speed", speed)
	return s.ClosestDiscrete(steering, speed)
}
