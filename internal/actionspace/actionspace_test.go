package actionspace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const discreteJSON = `[
	{"steering_angle": -30, "speed": 0.5},
	{"steering_angle": 0, "speed": 1.0},
	{"steering_angle": 0, "speed": 2.0},
	{"steering_angle": 30, "speed": 0.5}
]`

const continuousJSON = `{
	"steering_angle": {"low": -30, "high": 30},
	"speed": {"low": 0.5, "high": 4.0}
}`

func TestNewInfersTypeFromShape(t *testing.T) {
	discrete, err := New(json.RawMessage(discreteJSON), "")
	require.NoError(t, err)
	assert.Equal(t, Discrete, discrete.Type())

	continuous, err := New(json.RawMessage(continuousJSON), "")
	require.NoError(t, err)
	assert.Equal(t, Continuous, continuous.Type())
}

func TestNewExplicitTypeWins(t *testing.T) {
	s, err := New(json.RawMessage(continuousJSON), Continuous)
	require.NoError(t, err)
	assert.Equal(t, Continuous, s.Type())

	_, err = New(json.RawMessage(continuousJSON), Discrete)
	require.ErrorIs(t, err, ErrValidation, "continuous shape must not parse as discrete")

	_, err = New(json.RawMessage(discreteJSON), "turbo")
	require.ErrorIs(t, err, ErrValidation)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing", ""},
		{"null", "null"},
		{"empty discrete list", "[]"},
		{"discrete action missing speed", `[{"steering_angle": 0}]`},
		{"continuous missing speed range", `{"steering_angle": {"low": -30, "high": 30}}`},
		{"continuous range missing high", `{"steering_angle": {"low": -30}, "speed": {"low": 0.5, "high": 4}}`},
		{"continuous low not below high", `{"steering_angle": {"low": 30, "high": -30}, "speed": {"low": 0.5, "high": 4}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(json.RawMessage(tc.raw), "")
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestContinuousNormalizeClamps(t *testing.T) {
	s, err := New(json.RawMessage(continuousJSON), "")
	require.NoError(t, err)

	action := s.Normalize(45, 10)
	assert.Equal(t, 30.0, action.SteeringAngle)
	assert.Equal(t, 4.0, action.Speed)

	action = s.Normalize(-45, 0.1)
	assert.Equal(t, -30.0, action.SteeringAngle)
	assert.Equal(t, 0.5, action.Speed)

	action = s.Normalize(15, 2)
	assert.Equal(t, 15.0, action.SteeringAngle)
	assert.Equal(t, 2.0, action.Speed)
}

func TestDiscreteNormalizeExactMatch(t *testing.T) {
	s, err := New(json.RawMessage(discreteJSON), "")
	require.NoError(t, err)

	action := s.Normalize(30, 0.5)
	assert.Equal(t, Action{SteeringAngle: 30, Speed: 0.5}, action)
}

func TestDiscreteNormalizeClosestMatch(t *testing.T) {
	s, err := New(json.RawMessage(discreteJSON), "")
	require.NoError(t, err)

	action := s.Normalize(2, 1.1)
	assert.Equal(t, Action{SteeringAngle: 0, Speed: 1.0}, action)
}

func TestClosestDiscreteTieResolvesToFirstDeclared(t *testing.T) {
	s, err := New(json.RawMessage(discreteJSON), "")
	require.NoError(t, err)

	// (0, 1.5) is equidistant from (0, 1.0) and (0, 2.0).
	action := s.ClosestDiscrete(0, 1.5)
	assert.Equal(t, Action{SteeringAngle: 0, Speed: 1.0}, action)
}

func TestValidityChecks(t *testing.T) {
	discrete, err := New(json.RawMessage(discreteJSON), "")
	require.NoError(t, err)
	assert.True(t, discrete.ValidSteeringAngle(-30))
	assert.False(t, discrete.ValidSteeringAngle(-15))
	assert.True(t, discrete.ValidSpeed(2.0))
	assert.False(t, discrete.ValidSpeed(3.0))

	continuous, err := New(json.RawMessage(continuousJSON), "")
	require.NoError(t, err)
	assert.True(t, continuous.ValidSteeringAngle(29.9))
	assert.False(t, continuous.ValidSteeringAngle(30.1))
	assert.True(t, continuous.ValidSpeed(0.5))
	assert.False(t, continuous.ValidSpeed(0.49))
}

func TestAccessors(t *testing.T) {
	discrete, err := New(json.RawMessage(discreteJSON), "")
	require.NoError(t, err)
	assert.Len(t, discrete.DiscreteActions(), 4)
	_, _, ok := discrete.ContinuousRanges()
	assert.False(t, ok)

	continuous, err := New(json.RawMessage(continuousJSON), "")
	require.NoError(t, err)
	assert.Nil(t, continuous.DiscreteActions())
	steering, speed, ok := continuous.ContinuousRanges()
	require.True(t, ok)
	assert.Equal(t, Range{Low: -30, High: 30}, steering)
	assert.Equal(t, Range{Low: 0.5, High: 4.0}, speed)

	assert.Contains(t, continuous.Describe(), "Action space type: continuous")
	assert.Contains(t, continuous.Describe(), `"low"`)
}
