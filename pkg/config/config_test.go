package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walking-go/pkg/walkerr"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
general:
  sampling_time: 0.01
  com_height: 0.6
  use_mpc: true
dcm_controller:
  horizon: 24
goal:
  broker: tcp://localhost:1883
  topic: walker/goal
`))
	require.NoError(t, err)
	assert.Equal(t, 0.01, cfg.General.SamplingTime)
	assert.Equal(t, 0.6, cfg.General.ComHeight)
	assert.True(t, cfg.General.UseMPC)
	assert.Equal(t, 24, cfg.DCMController.Horizon)
	assert.Equal(t, "walker/goal", cfg.Goal.Topic)

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.08, cfg.StepAdaptation.ZmpTolerance)
	assert.Equal(t, ":8085", cfg.Command.Addr)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("general: ["))
	assert.True(t, walkerr.IsConfig(err))
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative sampling time", "general:\n  sampling_time: -1\n"},
		{"zero com height", "general:\n  com_height: 0\n"},
		{"negative adaptation gain", "step_adaptation:\n  sigma_weight: -2\n"},
		{"zero zmp tolerance", "step_adaptation:\n  zmp_tolerance: 0\n"},
		{"mpc horizon too short", "general:\n  use_mpc: true\ndcm_controller:\n  horizon: 1\n"},
		{"zero inner gain", "zmp_controller:\n  k_com_walking: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSaturationThresholdValidated(t *testing.T) {
	_, err := Parse([]byte("zmp_measurement:\n  use_saturation: true\n  fz_threshold: 0\n"))
	require.Error(t, err)
	assert.True(t, walkerr.Is(err, walkerr.ErrSchedulingSaturation))
}

func TestAdaptationGainsSkippedWhenDisabled(t *testing.T) {
	// With adaptation off its gains are not consulted.
	_, err := Parse([]byte("general:\n  use_step_adaptation: false\nstep_adaptation:\n  zmp_weight: -1\n"))
	assert.NoError(t, err)
}
