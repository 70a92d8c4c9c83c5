package simulator

import (
	"strconv"
	"time"

	"github.com/saaga0h/watson-platform/internal/historybuf"
	"github.com/saaga0h/watson-platform/internal/probability"
)

// Config holds the Bayesian sensor parameters being simulated.
type Config struct {
	Prior          float64       `json:"prior"`
	Threshold      float64       `json:"threshold"`
	SampleInterval time.Duration `json:"sample_interval"`
}

// Point is the simulated sensor output at one sample instant.
type Point struct {
	Timestamp          time.Time `json:"timestamp"`
	Probability        float64   `json:"probability"`
	SensorState        bool      `json:"sensor_state"`
	ActiveObservations []string  `json:"active_observations"`
}

// Stats summarizes a simulation run.
type Stats struct {
	MeanProbability float64       `json:"mean_probability"`
	MaxProbability  float64       `json:"max_probability"`
	MinProbability  float64       `json:"min_probability"`
	OnTime          time.Duration `json:"on_time"`
	OnPercent       float64       `json:"on_percent"`
	TriggerCount    int           `json:"trigger_count"`
}

// OnInterval is one maximal stretch during which the simulated sensor was
// on. The final interval is unterminated when the sensor was still on at
// the end of the simulation window.
type OnInterval struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Unterminated bool      `json:"unterminated,omitempty"`
}

// Result bundles the full simulation output.
type Result struct {
	Points      []Point      `json:"points"`
	Stats       Stats        `json:"stats"`
	OnIntervals []OnInterval `json:"on_intervals"`
}

// Simulate replays the Bayesian sensor over [start, end] at the configured
// sample interval. At each instant every observation's entity state is
// looked up in the store; observations whose entity has no state yet are
// skipped, the rest fold into the posterior in order. Running twice over
// the same inputs yields identical output.
func Simulate(cfg Config, observations []probability.Observation, store *historybuf.Store, start, end time.Time) Result {
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	var result Result
	for t := start; !t.After(end); t = t.Add(interval) {
		p := cfg.Prior
		var active []string
		seenActive := make(map[string]bool)

		for _, obs := range observations {
			state, ok := store.StateAtOrBefore(obs.EntityID, t)
			if !ok {
				continue
			}
			matches, ok := observationMatches(obs, state)
			if !ok {
				continue
			}

			p = update(p, obs, matches)
			if matches && !seenActive[obs.EntityID] {
				seenActive[obs.EntityID] = true
				active = append(active, obs.EntityID)
			}
		}

		result.Points = append(result.Points, Point{
			Timestamp:          t,
			Probability:        p,
			SensorState:        p >= cfg.Threshold,
			ActiveObservations: active,
		})
	}

	result.Stats = computeStats(result.Points, interval)
	result.OnIntervals = onIntervals(result.Points, end)
	return result
}

// observationMatches evaluates one observation against the entity's current
// state. The second return is false when the state cannot be interpreted,
// such as a non-numeric reading for a threshold observation.
func observationMatches(obs probability.Observation, state string) (matches, ok bool) {
	switch obs.Kind {
	case probability.KindNumeric:
		value, err := strconv.ParseFloat(state, 64)
		if err != nil {
			return false, false
		}
		if obs.Above != nil && value <= *obs.Above {
			return false, true
		}
		if obs.Below != nil && value > *obs.Below {
			return false, true
		}
		return true, true
	default:
		return state == obs.ToState, true
	}
}

// update folds one observation into the posterior. An inactive observation
// contributes its complement probabilities. A zero denominator leaves the
// posterior unchanged.
func update(p float64, obs probability.Observation, active bool) float64 {
	probTrue := obs.ProbGivenTrue
	probFalse := obs.ProbGivenFalse
	if !active {
		probTrue = 1 - probTrue
		probFalse = 1 - probFalse
	}

	numerator := probTrue * p
	denominator := numerator + probFalse*(1-p)
	if denominator == 0 {
		return p
	}
	return numerator / denominator
}

func computeStats(points []Point, interval time.Duration) Stats {
	if len(points) == 0 {
		return Stats{}
	}

	stats := Stats{
		MinProbability: points[0].Probability,
		MaxProbability: points[0].Probability,
	}
	sum := 0.0
	onCount := 0
	prevOn := false
	for _, pt := range points {
		sum += pt.Probability
		if pt.Probability < stats.MinProbability {
			stats.MinProbability = pt.Probability
		}
		if pt.Probability > stats.MaxProbability {
			stats.MaxProbability = pt.Probability
		}
		if pt.SensorState {
			onCount++
			if !prevOn {
				stats.TriggerCount++
			}
		}
		prevOn = pt.SensorState
	}

	stats.MeanProbability = sum / float64(len(points))
	stats.OnTime = time.Duration(onCount) * interval
	stats.OnPercent = float64(onCount) / float64(len(points)) * 100
	return stats
}

func onIntervals(points []Point, end time.Time) []OnInterval {
	var intervals []OnInterval
	var current *OnInterval
	for _, pt := range points {
		switch {
		case pt.SensorState && current == nil:
			intervals = append(intervals, OnInterval{Start: pt.Timestamp})
			current = &intervals[len(intervals)-1]
		case !pt.SensorState && current != nil:
			current.End = pt.Timestamp
			current = nil
		}
	}
	if current != nil {
		current.End = end
		current.Unterminated = true
	}
	return intervals
}
