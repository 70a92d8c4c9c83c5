package probability

import (
	"math"
	"sort"
	"time"

	"github.com/saaga0h/watson-platform/internal/periods"
	"github.com/saaga0h/watson-platform/internal/threshold"
	"github.com/saaga0h/watson-platform/internal/timeline"
)

// Conditional probabilities are hard-clamped into this range so a single
// observation can never drive the Bayesian update to 0 or 1.
const (
	MinProbability = 0.01
	MaxProbability = 0.99
)

// EntityProbability is one scored observation candidate: a discrete state
// or numeric threshold predicate with its two conditional probabilities.
type EntityProbability struct {
	EntityID            string                      `json:"entity_id"`
	State               string                      `json:"state"`
	ProbGivenTrue       float64                     `json:"prob_given_true"`
	ProbGivenFalse      float64                     `json:"prob_given_false"`
	DiscriminationPower float64                     `json:"discrimination_power"`
	TrueOccurrences     int                         `json:"true_occurrences"`
	FalseOccurrences    int                         `json:"false_occurrences"`
	TotalTruePeriods    int                         `json:"total_true_periods"`
	TotalFalsePeriods   int                         `json:"total_false_periods"`
	NumericStats        *timeline.NumericStateStats `json:"numeric_stats,omitempty"`
	OptimalThresholds   *threshold.Optimal          `json:"optimal_thresholds,omitempty"`
}

// Clamp forces a probability into [MinProbability, MaxProbability].
func Clamp(p float64) float64 {
	return math.Min(MaxProbability, math.Max(MinProbability, p))
}

// EstimateDiscrete produces one EntityProbability per discrete state. A
// state scores an occurrence in each period where it is dominant: the value
// active at the period midpoint, falling back to the first value observed
// strictly inside the period when the history starts later.
func EstimateDiscrete(entityID string, seg *timeline.Segmenter, periodSet []periods.TimePeriod) []EntityProbability {
	totalTrue, totalFalse := periods.CountClasses(periodSet)
	if totalTrue == 0 || totalFalse == 0 {
		return nil
	}

	type counts struct {
		trueOcc  int
		falseOcc int
	}
	occurrences := make(map[string]*counts)
	var order []string

	for _, p := range periodSet {
		state, ok := seg.StateAt(p.Midpoint())
		if !ok {
			state, ok = seg.FirstStateAfter(p.Start, p.End)
		}
		if !ok {
			continue
		}

		c, seen := occurrences[state]
		if !seen {
			c = &counts{}
			occurrences[state] = c
			order = append(order, state)
		}
		if p.IsTruePeriod {
			c.trueOcc++
		} else {
			c.falseOcc++
		}
	}

	results := make([]EntityProbability, 0, len(order))
	for _, state := range order {
		c := occurrences[state]
		probTrue := Clamp(float64(c.trueOcc) / float64(totalTrue))
		probFalse := Clamp(float64(c.falseOcc) / float64(totalFalse))

		results = append(results, EntityProbability{
			EntityID:            entityID,
			State:               state,
			ProbGivenTrue:       probTrue,
			ProbGivenFalse:      probFalse,
			DiscriminationPower: math.Abs(probTrue - probFalse),
			TrueOccurrences:     c.trueOcc,
			FalseOccurrences:    c.falseOcc,
			TotalTruePeriods:    totalTrue,
			TotalFalsePeriods:   totalFalse,
		})
	}
	return results
}

// EstimateNumeric produces exactly one EntityProbability for a numeric
// entity: the duration-weighted match rate of the optimizer's threshold
// predicate inside each period class.
func EstimateNumeric(entityID string, stats *timeline.NumericStateStats, opt threshold.Optimal, periodSet []periods.TimePeriod) *EntityProbability {
	if stats == nil {
		return nil
	}
	totalTrue, totalFalse := periods.CountClasses(periodSet)
	if totalTrue == 0 || totalFalse == 0 {
		return nil
	}

	probTrue := Clamp(matchRate(stats.TrueChunks, opt))
	probFalse := Clamp(matchRate(stats.FalseChunks, opt))

	optCopy := opt
	return &EntityProbability{
		EntityID:            entityID,
		State:               opt.Describe(),
		ProbGivenTrue:       probTrue,
		ProbGivenFalse:      probFalse,
		DiscriminationPower: math.Abs(probTrue - probFalse),
		TrueOccurrences:     totalTrue,
		FalseOccurrences:    totalFalse,
		TotalTruePeriods:    totalTrue,
		TotalFalsePeriods:   totalFalse,
		NumericStats:        stats,
		OptimalThresholds:   &optCopy,
	}
}

// matchRate is the fraction of total chunk time whose value satisfies the
// predicate.
func matchRate(chunks []timeline.ValueDuration, opt threshold.Optimal) float64 {
	var total, matching time.Duration
	for _, c := range chunks {
		total += c.Duration
		if opt.Matches(c.Value) {
			matching += c.Duration
		}
	}
	if total <= 0 {
		return 0
	}
	return float64(matching) / float64(total)
}

// Rank orders candidates by descending discrimination power. The sort is
// stable so ties keep their insertion order.
func Rank(candidates []EntityProbability) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DiscriminationPower > candidates[j].DiscriminationPower
	})
}
