package periods

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MergeTolerance is the maximum gap between two same-polarity periods
// that still merges them into one.
const MergeTolerance = 60 * time.Second

// ErrNoTruePeriod and ErrNoFalsePeriod indicate that probability
// calculations cannot be run because one of the label classes is missing.
var (
	ErrNoTruePeriod  = errors.New("at least one TRUE period is required")
	ErrNoFalsePeriod = errors.New("at least one FALSE period is required")
)

// TimePeriod is a user-labeled historical interval asserting the desired
// composite sensor output during that time.
type TimePeriod struct {
	ID           string    `json:"id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	IsTruePeriod bool      `json:"is_true_period"`
	Label        string    `json:"label,omitempty"`
}

// Duration returns the length of the period.
func (p TimePeriod) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Midpoint returns the instant halfway through the period.
func (p TimePeriod) Midpoint() time.Time {
	return p.Start.Add(p.Duration() / 2)
}

// New creates a validated period with a generated id.
func New(start, end time.Time, isTrue bool, label string) (TimePeriod, error) {
	if !start.Before(end) {
		return TimePeriod{}, fmt.Errorf("period start %s must be before end %s", start, end)
	}
	return TimePeriod{
		ID:           uuid.New().String(),
		Start:        start,
		End:          end,
		IsTruePeriod: isTrue,
		Label:        label,
	}, nil
}

// Validate checks every period's time ordering.
func Validate(periods []TimePeriod) error {
	for _, p := range periods {
		if !p.Start.Before(p.End) {
			return fmt.Errorf("period %s: start %s is not before end %s", p.ID, p.Start, p.End)
		}
	}
	return nil
}

// RequireBothClasses verifies that both a TRUE and a FALSE period exist.
// Without both classes the conditional probabilities are meaningless.
func RequireBothClasses(periods []TimePeriod) error {
	var hasTrue, hasFalse bool
	for _, p := range periods {
		if p.IsTruePeriod {
			hasTrue = true
		} else {
			hasFalse = true
		}
	}
	if !hasTrue {
		return ErrNoTruePeriod
	}
	if !hasFalse {
		return ErrNoFalsePeriod
	}
	return nil
}

// CountClasses returns the number of TRUE and FALSE periods.
func CountClasses(periods []TimePeriod) (truePeriods, falsePeriods int) {
	for _, p := range periods {
		if p.IsTruePeriod {
			truePeriods++
		} else {
			falsePeriods++
		}
	}
	return truePeriods, falsePeriods
}

// Merge combines adjacent or overlapping same-polarity periods whose gap is
// within MergeTolerance. The merged period keeps the earlier period's id and
// label. Input is not modified; output is sorted by start time.
func Merge(periods []TimePeriod) []TimePeriod {
	if len(periods) <= 1 {
		out := make([]TimePeriod, len(periods))
		copy(out, periods)
		return out
	}

	sorted := make([]TimePeriod, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []TimePeriod{sorted[0]}
	for _, p := range sorted[1:] {
		last := &merged[len(merged)-1]
		if p.IsTruePeriod == last.IsTruePeriod && !p.Start.After(last.End.Add(MergeTolerance)) {
			if p.End.After(last.End) {
				last.End = p.End
			}
			continue
		}
		merged = append(merged, p)
	}

	return merged
}

// Delete removes the period with the given id. It returns the input
// unchanged if no period matches.
func Delete(periods []TimePeriod, id string) []TimePeriod {
	out := make([]TimePeriod, 0, len(periods))
	for _, p := range periods {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
