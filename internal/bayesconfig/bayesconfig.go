// Package bayesconfig renders selected observations as a Home Assistant
// bayesian binary_sensor configuration block.
package bayesconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/watson-platform/internal/probability"
)

// Sensor is the configuration being rendered.
type Sensor struct {
	Name                 string
	Prior                float64
	ProbabilityThreshold float64
	Observations         []probability.Observation
}

type observationYAML struct {
	Platform       string   `yaml:"platform"`
	EntityID       string   `yaml:"entity_id"`
	ToState        string   `yaml:"to_state,omitempty"`
	Above          *float64 `yaml:"above,omitempty"`
	Below          *float64 `yaml:"below,omitempty"`
	ProbGivenTrue  float64  `yaml:"prob_given_true"`
	ProbGivenFalse float64  `yaml:"prob_given_false"`
}

type sensorYAML struct {
	Platform             string            `yaml:"platform"`
	Name                 string            `yaml:"name"`
	Prior                float64           `yaml:"prior"`
	ProbabilityThreshold float64           `yaml:"probability_threshold"`
	Observations         []observationYAML `yaml:"observations"`
}

type configYAML struct {
	BinarySensor []sensorYAML `yaml:"binary_sensor"`
}

// Render produces the YAML block for one sensor, ready to paste into a
// Home Assistant configuration.
func Render(s Sensor) (string, error) {
	out := sensorYAML{
		Platform:             "bayesian",
		Name:                 s.Name,
		Prior:                s.Prior,
		ProbabilityThreshold: s.ProbabilityThreshold,
	}

	for _, obs := range s.Observations {
		o := observationYAML{
			EntityID:       obs.EntityID,
			ProbGivenTrue:  obs.ProbGivenTrue,
			ProbGivenFalse: obs.ProbGivenFalse,
		}
		switch obs.Kind {
		case probability.KindNumeric:
			o.Platform = "numeric_state"
			o.Above = obs.Above
			o.Below = obs.Below
		case probability.KindDiscrete:
			o.Platform = "state"
			o.ToState = obs.ToState
		default:
			return "", fmt.Errorf("unknown observation kind %q for %s", obs.Kind, obs.EntityID)
		}
		out.Observations = append(out.Observations, o)
	}

	encoded, err := yaml.Marshal(configYAML{BinarySensor: []sensorYAML{out}})
	if err != nil {
		return "", fmt.Errorf("render bayesian config: %w", err)
	}
	return string(encoded), nil
}
