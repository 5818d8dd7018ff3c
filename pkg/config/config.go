// Package config loads and validates the walking controller configuration.
// The file is YAML, split into one section per component; every section is
// validated at load time so that a bad parameter aborts startup instead of
// surfacing in the middle of a control tick.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"walking-go/pkg/walkerr"
)

// General holds the parameters shared by every component.
type General struct {
	// SamplingTime is the control period dT in seconds.
	SamplingTime float64 `yaml:"sampling_time"`

	// ComHeight is the nominal height of the center of mass in meters,
	// used to derive the LIP time constant omega.
	ComHeight float64 `yaml:"com_height"`

	// UseStepAdaptation enables the step adaptation QP.
	UseStepAdaptation bool `yaml:"use_step_adaptation"`

	// UseMPC selects the predictive DCM controller instead of the
	// reactive one. Static choice, never switched at run time.
	UseMPC bool `yaml:"use_mpc"`

	// FeedbackTimeoutMs bounds a single feedback acquisition.
	FeedbackTimeoutMs int `yaml:"feedback_timeout_ms"`
}

func (g *General) validate() error {
	if g.SamplingTime <= 0 {
		return walkerr.ConfigValidation("general", "sampling_time", "must be positive")
	}
	if g.ComHeight <= 0 {
		return walkerr.ConfigValidation("general", "com_height", "must be positive")
	}
	if g.FeedbackTimeoutMs <= 0 {
		return walkerr.ConfigValidation("general", "feedback_timeout_ms", "must be positive")
	}
	return nil
}

// StepAdaptation holds the step adaptation QP gains and tolerances.
type StepAdaptation struct {
	ZmpWeight      float64 `yaml:"zmp_weight"`
	OffsetWeight   float64 `yaml:"offset_weight"`
	SigmaWeight    float64 `yaml:"sigma_weight"`
	CouplingWeight float64 `yaml:"coupling_weight"`

	// ZmpTolerance bounds the corrected landing position around the
	// nominal one, in meters.
	ZmpTolerance float64 `yaml:"zmp_tolerance"`

	// DurationTolerance bounds the corrected step duration around the
	// nominal one, in seconds. The bound is mapped through exp(omega*t)
	// so that the QP constrains sigma directly.
	DurationTolerance float64 `yaml:"duration_tolerance"`
}

func (s *StepAdaptation) validate() error {
	for option, v := range map[string]float64{
		"zmp_weight":      s.ZmpWeight,
		"offset_weight":   s.OffsetWeight,
		"sigma_weight":    s.SigmaWeight,
		"coupling_weight": s.CouplingWeight,
	} {
		if v <= 0 {
			return walkerr.ConfigValidation("step_adaptation", option, "gain must be positive")
		}
	}
	if s.ZmpTolerance <= 0 {
		return walkerr.ConfigValidation("step_adaptation", "zmp_tolerance", "must be positive")
	}
	if s.DurationTolerance <= 0 {
		return walkerr.ConfigValidation("step_adaptation", "duration_tolerance", "must be positive")
	}
	return nil
}

// DCMController configures the outer DCM loop.
type DCMController struct {
	// Gain is the proportional gain of the reactive controller.
	Gain float64 `yaml:"gain"`

	// Horizon is the number of prediction steps of the MPC variant.
	Horizon int `yaml:"horizon"`

	// StateWeight and InputWeight are the MPC cost weights.
	StateWeight float64 `yaml:"state_weight"`
	InputWeight float64 `yaml:"input_weight"`

	// SupportMargin inflates the support rectangle used as the MPC ZMP
	// constraint, in meters.
	SupportMargin float64 `yaml:"support_margin"`
}

func (d *DCMController) validate(useMPC bool) error {
	if d.Gain <= 0 {
		return walkerr.ConfigValidation("dcm_controller", "gain", "must be positive")
	}
	if useMPC {
		if d.Horizon < 2 {
			return walkerr.ConfigValidation("dcm_controller", "horizon", "must be at least 2")
		}
		if d.StateWeight <= 0 || d.InputWeight <= 0 {
			return walkerr.ConfigValidation("dcm_controller", "state_weight", "MPC weights must be positive")
		}
	}
	return nil
}

// ZMPController configures the inner ZMP-CoM stabilizer. The controller has
// separate gain pairs for the stance and walking phases.
type ZMPController struct {
	KZmpStance  float64 `yaml:"k_zmp_stance"`
	KComStance  float64 `yaml:"k_com_stance"`
	KZmpWalking float64 `yaml:"k_zmp_walking"`
	KComWalking float64 `yaml:"k_com_walking"`
}

func (z *ZMPController) validate() error {
	for option, v := range map[string]float64{
		"k_zmp_stance":  z.KZmpStance,
		"k_com_stance":  z.KComStance,
		"k_zmp_walking": z.KZmpWalking,
		"k_com_walking": z.KComWalking,
	} {
		if v <= 0 {
			return walkerr.ConfigValidation("zmp_controller", option, "gain must be positive")
		}
	}
	return nil
}

// ZMPMeasurement configures the contact-wrench to ZMP conversion.
type ZMPMeasurement struct {
	// UseSaturation enables the Fz saturation path.
	UseSaturation bool `yaml:"use_saturation"`

	// FzThreshold is the minimum normal force, in newtons, below which a
	// foot does not contribute to the global ZMP.
	FzThreshold float64 `yaml:"fz_threshold"`

	// Epsilon regularizes the saturated ZMP division.
	Epsilon float64 `yaml:"epsilon"`
}

func (z *ZMPMeasurement) validate() error {
	if z.UseSaturation && z.FzThreshold <= 0 {
		return walkerr.New(walkerr.ErrSchedulingSaturation,
			"fz saturation threshold must be positive, got %g", z.FzThreshold)
	}
	if z.Epsilon < 0 {
		return walkerr.ConfigValidation("zmp_measurement", "epsilon", "must not be negative")
	}
	return nil
}

// Command configures the websocket command surface.
type Command struct {
	Addr string `yaml:"addr"`
}

// Goal configures the MQTT goal input. An empty broker disables it.
type Goal struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// Config is the full controller configuration.
type Config struct {
	General        General        `yaml:"general"`
	StepAdaptation StepAdaptation `yaml:"step_adaptation"`
	DCMController  DCMController  `yaml:"dcm_controller"`
	ZMPController  ZMPController  `yaml:"zmp_controller"`
	ZMPMeasurement ZMPMeasurement `yaml:"zmp_measurement"`
	Command        Command        `yaml:"command"`
	Goal           Goal           `yaml:"goal"`
}

// Default returns a configuration with the reference gait parameters.
func Default() *Config {
	return &Config{
		General: General{
			SamplingTime:      0.016,
			ComHeight:         0.53,
			UseStepAdaptation: true,
			FeedbackTimeoutMs: 100,
		},
		StepAdaptation: StepAdaptation{
			ZmpWeight:         1.0,
			OffsetWeight:      0.5,
			SigmaWeight:       5.0,
			CouplingWeight:    10.0,
			ZmpTolerance:      0.08,
			DurationTolerance: 0.15,
		},
		DCMController: DCMController{
			Gain:          1.2,
			Horizon:       16,
			StateWeight:   10.0,
			InputWeight:   1.0,
			SupportMargin: 0.02,
		},
		ZMPController: ZMPController{
			KZmpStance:  0.6,
			KComStance:  5.0,
			KZmpWalking: 1.0,
			KComWalking: 4.0,
		},
		ZMPMeasurement: ZMPMeasurement{
			UseSaturation: false,
			FzThreshold:   15.0,
			Epsilon:       0.001,
		},
		Command: Command{Addr: ":8085"},
	}
}

// Load reads path into a Config, applying defaults first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, walkerr.Wrap(err, walkerr.ErrConfigMissing, "unable to read %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, walkerr.Wrap(err, walkerr.ErrConfigValidation, "malformed configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.General.validate(); err != nil {
		return err
	}
	if c.General.UseStepAdaptation {
		if err := c.StepAdaptation.validate(); err != nil {
			return err
		}
	}
	if err := c.DCMController.validate(c.General.UseMPC); err != nil {
		return err
	}
	if err := c.ZMPController.validate(); err != nil {
		return err
	}
	return c.ZMPMeasurement.validate()
}
