package bayesconfig

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/watson-platform/internal/probability"
)

func TestRender(t *testing.T) {
	above := 25.0
	sensor := Sensor{
		Name:                 "Someone Home",
		Prior:                0.5,
		ProbabilityThreshold: 0.8,
		Observations: []probability.Observation{
			{
				EntityID:       "binary_sensor.motion",
				Kind:           probability.KindDiscrete,
				ToState:        "on",
				ProbGivenTrue:  0.9,
				ProbGivenFalse: 0.1,
			},
			{
				EntityID:       "sensor.illuminance",
				Kind:           probability.KindNumeric,
				Above:          &above,
				ProbGivenTrue:  0.85,
				ProbGivenFalse: 0.15,
			},
		},
	}

	rendered, err := Render(sensor)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// The output must parse back as the Home Assistant schema.
	var parsed struct {
		BinarySensor []struct {
			Platform             string  `yaml:"platform"`
			Name                 string  `yaml:"name"`
			Prior                float64 `yaml:"prior"`
			ProbabilityThreshold float64 `yaml:"probability_threshold"`
			Observations         []struct {
				Platform string   `yaml:"platform"`
				EntityID string   `yaml:"entity_id"`
				ToState  string   `yaml:"to_state"`
				Above    *float64 `yaml:"above"`
			} `yaml:"observations"`
		} `yaml:"binary_sensor"`
	}
	if err := yaml.Unmarshal([]byte(rendered), &parsed); err != nil {
		t.Fatalf("rendered YAML does not parse: %v\n%s", err, rendered)
	}

	if len(parsed.BinarySensor) != 1 {
		t.Fatalf("binary_sensor entries = %d, want 1", len(parsed.BinarySensor))
	}
	s := parsed.BinarySensor[0]
	if s.Platform != "bayesian" || s.Name != "Someone Home" || s.Prior != 0.5 || s.ProbabilityThreshold != 0.8 {
		t.Errorf("sensor header = %+v", s)
	}
	if len(s.Observations) != 2 {
		t.Fatalf("observations = %d, want 2", len(s.Observations))
	}
	if s.Observations[0].Platform != "state" || s.Observations[0].ToState != "on" {
		t.Errorf("discrete observation = %+v", s.Observations[0])
	}
	if s.Observations[1].Platform != "numeric_state" || s.Observations[1].Above == nil || *s.Observations[1].Above != 25 {
		t.Errorf("numeric observation = %+v", s.Observations[1])
	}
	if strings.Contains(rendered, "to_state") && s.Observations[1].ToState != "" {
		t.Errorf("numeric observation leaked a to_state: %+v", s.Observations[1])
	}
}

func TestRenderRejectsUnknownKind(t *testing.T) {
	sensor := Sensor{
		Name: "Broken",
		Observations: []probability.Observation{
			{EntityID: "sensor.x", Kind: "mystery"},
		},
	}
	if _, err := Render(sensor); err == nil {
		t.Error("Render() accepted an unknown observation kind")
	}
}
