package analyzer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/saaga0h/watson-platform/internal/orchestrator"
	"github.com/saaga0h/watson-platform/internal/periods"
	"github.com/saaga0h/watson-platform/internal/probability"
	"github.com/saaga0h/watson-platform/internal/simulator"
)

// AnalyzeRequest asks for discrimination analysis of a set of entities
// against labeled time periods.
type AnalyzeRequest struct {
	RequestID  string               `json:"request_id"`
	SensorName string               `json:"sensor_name,omitempty"`
	EntityIDs  []string             `json:"entity_ids"`
	Periods    []periods.TimePeriod `json:"periods"`
	Start      time.Time            `json:"start"`
	End        time.Time            `json:"end"`

	// Daylight period generation, used instead of explicit periods when set.
	DaylightPeriods    bool `json:"daylight_periods,omitempty"`
	TrueDuringDaylight bool `json:"true_during_daylight,omitempty"`

	Prior                *float64 `json:"prior,omitempty"`
	ProbabilityThreshold *float64 `json:"probability_threshold,omitempty"`
}

// SimulateRequest asks for a replay of a Bayesian sensor configuration over
// a time window.
type SimulateRequest struct {
	RequestID            string                    `json:"request_id"`
	Observations         []probability.Observation `json:"observations"`
	Start                time.Time                 `json:"start"`
	End                  time.Time                 `json:"end"`
	Prior                *float64                  `json:"prior,omitempty"`
	ProbabilityThreshold *float64                  `json:"probability_threshold,omitempty"`
	SampleIntervalMin    int                       `json:"sample_interval_min,omitempty"`
}

// ProgressMessage is published per entity status change.
type ProgressMessage struct {
	RequestID string                   `json:"request_id"`
	Entity    orchestrator.EntityState `json:"entity"`
	Completed int                      `json:"completed"`
	Total     int                      `json:"total"`
}

// EntityError describes one entity that could not be analyzed.
type EntityError struct {
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// AnalyzeResult is the final response for an analyze request.
type AnalyzeResult struct {
	RequestID  string                          `json:"request_id"`
	Candidates []probability.EntityProbability `json:"candidates"`
	Errors     []EntityError                   `json:"errors,omitempty"`
	ConfigYAML string                          `json:"config_yaml,omitempty"`
}

// SimulateResult is the final response for a simulate request.
type SimulateResult struct {
	RequestID   string                 `json:"request_id"`
	Points      []simulator.Point      `json:"points"`
	Stats       simulator.Stats        `json:"stats"`
	OnIntervals []simulator.OnInterval `json:"on_intervals"`
}

// ErrorMessage is published when a request fails before any work starts.
type ErrorMessage struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

func parseAnalyzeRequest(payload []byte) (*AnalyzeRequest, error) {
	var req AnalyzeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode analyze request: %w", err)
	}
	if req.RequestID == "" {
		return nil, fmt.Errorf("analyze request has no request_id")
	}
	if len(req.EntityIDs) == 0 {
		return nil, fmt.Errorf("analyze request %s has no entities", req.RequestID)
	}
	if !req.Start.Before(req.End) {
		return nil, fmt.Errorf("analyze request %s has an empty window", req.RequestID)
	}
	return &req, nil
}

func parseSimulateRequest(payload []byte) (*SimulateRequest, error) {
	var req SimulateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode simulate request: %w", err)
	}
	if req.RequestID == "" {
		return nil, fmt.Errorf("simulate request has no request_id")
	}
	if len(req.Observations) == 0 {
		return nil, fmt.Errorf("simulate request %s has no observations", req.RequestID)
	}
	if !req.Start.Before(req.End) {
		return nil, fmt.Errorf("simulate request %s has an empty window", req.RequestID)
	}
	return &req, nil
}
