package threshold

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/saaga0h/watson-platform/internal/timeline"
)

// maxRangeTests caps the number of (above, below) pairs scored during the
// range search. The pair grid is sub-sampled with a fixed stride, trading
// completeness for bounded runtime on large inputs.
const maxRangeTests = 100

// evenCandidates is the number of evenly spaced candidate points added
// across [min, max] on top of the observed values and midpoints.
const evenCandidates = 21

// Optimal holds the winning threshold pair. A nil bound means that side is
// unconstrained; both nil means no usable threshold was found.
type Optimal struct {
	Above *float64 `json:"above,omitempty"`
	Below *float64 `json:"below,omitempty"`
}

// Matches reports whether a value satisfies the threshold predicate. The
// upper bound is inclusive.
func (o Optimal) Matches(value float64) bool {
	switch {
	case o.Above != nil && o.Below != nil:
		return value > *o.Above && value <= *o.Below
	case o.Above != nil:
		return value > *o.Above
	case o.Below != nil:
		return value <= *o.Below
	default:
		return false
	}
}

// Describe formats the threshold predicate for display and use as an
// observation's state descriptor.
func (o Optimal) Describe() string {
	switch {
	case o.Above != nil && o.Below != nil:
		return fmt.Sprintf("%.2f < value <= %.2f", *o.Above, *o.Below)
	case o.Above != nil:
		return fmt.Sprintf("> %.2f", *o.Above)
	case o.Below != nil:
		return fmt.Sprintf("<= %.2f", *o.Below)
	default:
		return "numeric"
	}
}

// FindOptimal searches for the threshold pair with the highest
// discrimination score. Three strategies are scored independently
// (above-only, below-only, inclusive range) and the best wins; the first
// candidate reaching the maximum score is kept, so results are
// deterministic for equal inputs.
func FindOptimal(stats *timeline.NumericStateStats) Optimal {
	if stats == nil || !stats.IsNumeric || len(stats.TrueChunks) == 0 || len(stats.FalseChunks) == 0 {
		return Optimal{}
	}

	trueIdx := newDurationIndex(stats.TrueChunks)
	falseIdx := newDurationIndex(stats.FalseChunks)
	candidates := generateCandidates(stats)

	bestScore := -1.0
	var best Optimal

	// Above-only thresholds
	for i := range candidates {
		score := scoreIndexed(trueIdx, falseIdx, &candidates[i], nil)
		if score > bestScore {
			bestScore = score
			best = Optimal{Above: &candidates[i]}
		}
	}

	// Below-only thresholds
	for i := range candidates {
		score := scoreIndexed(trueIdx, falseIdx, nil, &candidates[i])
		if score > bestScore {
			bestScore = score
			best = Optimal{Below: &candidates[i]}
		}
	}

	// Inclusive ranges, sub-sampled to stay within the evaluation cap
	stride := (len(candidates) * len(candidates)) / maxRangeTests
	if stride < 1 {
		stride = 1
	}
	tests := 0
	for i := 0; i < len(candidates)-1 && tests < maxRangeTests; i++ {
		for j := i + 1; j < len(candidates) && tests < maxRangeTests; j += stride {
			score := scoreIndexed(trueIdx, falseIdx, &candidates[i], &candidates[j])
			if score > bestScore {
				bestScore = score
				best = Optimal{Above: &candidates[i], Below: &candidates[j]}
			}
			tests++
		}
	}

	return best
}

// Score computes the duration-weighted discrimination of a threshold pair:
// the absolute difference between the fraction of true-labeled time and
// false-labeled time matching the predicate. A class with no chunks
// contributes a fraction of zero.
func Score(trueChunks, falseChunks []timeline.ValueDuration, above, below *float64) float64 {
	return scoreIndexed(newDurationIndex(trueChunks), newDurationIndex(falseChunks), above, below)
}

// CacheKey summarizes a chunk set for threshold caching. Only the first
// five chunks of each class are folded in; distinct inputs sharing a prefix
// are rare enough within one batch that the shortcut holds up.
func CacheKey(stats *timeline.NumericStateStats) string {
	summarize := func(chunks []timeline.ValueDuration) string {
		key := ""
		for i, c := range chunks {
			if i >= 5 {
				break
			}
			if i > 0 {
				key += ","
			}
			key += fmt.Sprintf("%.2f-%d", c.Value, c.Duration.Milliseconds())
		}
		return key
	}
	return summarize(stats.TrueChunks) + "|" + summarize(stats.FalseChunks)
}

// durationIndex pre-sorts chunks by value and keeps prefix duration sums so
// any (above, below] range is scored with two binary searches.
type durationIndex struct {
	values []float64
	prefix []time.Duration // prefix[i] = total duration of values[:i]
	total  time.Duration
}

func newDurationIndex(chunks []timeline.ValueDuration) *durationIndex {
	sorted := make([]timeline.ValueDuration, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value < sorted[j].Value
	})

	idx := &durationIndex{
		values: make([]float64, len(sorted)),
		prefix: make([]time.Duration, len(sorted)+1),
	}
	for i, c := range sorted {
		idx.values[i] = c.Value
		idx.prefix[i+1] = idx.prefix[i] + c.Duration
	}
	idx.total = idx.prefix[len(sorted)]
	return idx
}

// matchingFraction returns the duration-weighted fraction of chunks whose
// value satisfies the predicate.
func (d *durationIndex) matchingFraction(above, below *float64) float64 {
	if d.total <= 0 {
		return 0
	}

	lo := 0
	if above != nil {
		lo = sort.Search(len(d.values), func(i int) bool {
			return d.values[i] > *above
		})
	}
	hi := len(d.values)
	if below != nil {
		hi = sort.Search(len(d.values), func(i int) bool {
			return d.values[i] > *below
		})
	}
	if hi < lo {
		hi = lo
	}

	matching := d.prefix[hi] - d.prefix[lo]
	return float64(matching) / float64(d.total)
}

func scoreIndexed(trueIdx, falseIdx *durationIndex, above, below *float64) float64 {
	return math.Abs(trueIdx.matchingFraction(above, below) - falseIdx.matchingFraction(above, below))
}

// generateCandidates unions every observed value, the midpoint between each
// adjacent pair of sorted values, and evenly spaced points across
// [min, max], then sorts and deduplicates. This keeps the candidate count
// near O(n) while still covering every boundary that can flip a
// duration-weighted classification.
func generateCandidates(stats *timeline.NumericStateStats) []float64 {
	var candidates []float64
	for _, c := range stats.TrueChunks {
		candidates = append(candidates, c.Value)
	}
	for _, c := range stats.FalseChunks {
		candidates = append(candidates, c.Value)
	}

	observed := append([]float64(nil), candidates...)
	sort.Float64s(observed)
	observed = dedup(observed)
	for i := 0; i+1 < len(observed); i++ {
		candidates = append(candidates, (observed[i]+observed[i+1])/2)
	}

	step := (stats.Max - stats.Min) / float64(evenCandidates-1)
	for i := 0; i < evenCandidates; i++ {
		candidates = append(candidates, stats.Min+step*float64(i))
	}

	sort.Float64s(candidates)
	return dedup(candidates)
}

func dedup(sorted []float64) []float64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
