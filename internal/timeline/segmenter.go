package timeline

import (
	"sort"
	"strconv"
	"time"

	"github.com/saaga0h/watson-platform/internal/periods"
)

// MinChunkDuration is the shortest sub-interval that still counts as a
// chunk. Anything shorter is treated as sensor bounce and dropped.
const MinChunkDuration = time.Second

// Segmenter converts raw state-change history plus a period set into
// duration-weighted chunks. The history is sorted and parsed once so each
// period is processed with binary searches instead of rescans.
type Segmenter struct {
	entries []HistoryEntry
	values  []float64 // parsed value per entry, NaN when not numeric
	numeric []bool
}

// NewSegmenter prepares a segmenter for one entity's history.
func NewSegmenter(history []HistoryEntry) *Segmenter {
	sorted := SortHistory(history)

	s := &Segmenter{
		entries: sorted,
		values:  make([]float64, len(sorted)),
		numeric: make([]bool, len(sorted)),
	}
	for i, e := range sorted {
		if v, err := strconv.ParseFloat(e.State, 64); err == nil {
			s.values[i] = v
			s.numeric[i] = true
		}
	}
	return s
}

// StateAt returns the last state at or before t, or false when the history
// starts after t.
func (s *Segmenter) StateAt(t time.Time) (string, bool) {
	idx := s.lastIndexAtOrBefore(t)
	if idx < 0 {
		return "", false
	}
	return s.entries[idx].State, true
}

// FirstStateAfter returns the first state change strictly inside (t, end).
func (s *Segmenter) FirstStateAfter(t, end time.Time) (string, bool) {
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].ChangedAt.After(t)
	})
	if idx >= len(s.entries) || !s.entries[idx].ChangedAt.Before(end) {
		return "", false
	}
	return s.entries[idx].State, true
}

// SegmentNumeric walks every period and emits one chunk per maximal
// sub-interval during which the entity held one numeric value. The value
// entering a period is the last numeric-coercible state at or before the
// period start; sub-intervals with no known value yet are skipped, and
// non-numeric changes mid-period keep the previous value in effect.
func (s *Segmenter) SegmentNumeric(periodSet []periods.TimePeriod) []SensorChunk {
	if len(s.entries) == 0 || len(periodSet) == 0 {
		return nil
	}

	var chunks []SensorChunk
	for _, p := range periodSet {
		lo, hi := s.indexRangeInside(p.Start, p.End)

		value, haveValue := s.lastNumericAtOrBefore(p.Start)

		cursor := p.Start
		for i := lo; i <= hi; i++ {
			var next time.Time
			if i < hi {
				next = s.entries[i].ChangedAt
			} else {
				next = p.End
			}

			if next.Sub(cursor) >= MinChunkDuration && haveValue {
				chunks = append(chunks, SensorChunk{
					Value:         value,
					Duration:      next.Sub(cursor),
					DesiredOutput: p.IsTruePeriod,
				})
			}

			if i < hi && s.numeric[i] {
				value = s.values[i]
				haveValue = true
			}
			cursor = next
		}
	}

	return chunks
}

// SegmentStates is the discrete analogue of SegmentNumeric: one chunk per
// maximal sub-interval during which the entity held one state string.
func (s *Segmenter) SegmentStates(periodSet []periods.TimePeriod) []StateChunk {
	if len(s.entries) == 0 || len(periodSet) == 0 {
		return nil
	}

	var chunks []StateChunk
	for _, p := range periodSet {
		lo, hi := s.indexRangeInside(p.Start, p.End)

		state, haveState := s.StateAt(p.Start)

		cursor := p.Start
		for i := lo; i <= hi; i++ {
			var next time.Time
			if i < hi {
				next = s.entries[i].ChangedAt
			} else {
				next = p.End
			}

			if next.Sub(cursor) >= MinChunkDuration && haveState {
				chunks = append(chunks, StateChunk{
					State:         state,
					Duration:      next.Sub(cursor),
					DesiredOutput: p.IsTruePeriod,
				})
			}

			if i < hi {
				state = s.entries[i].State
				haveState = true
			}
			cursor = next
		}
	}

	return chunks
}

// indexRangeInside returns [lo, hi) over entries strictly inside
// (start, end), plus hi as the sentinel for the closing period boundary.
// The walk over [lo, hi] visits each change point and finally the period
// end itself.
func (s *Segmenter) indexRangeInside(start, end time.Time) (lo, hi int) {
	lo = sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].ChangedAt.After(start)
	})
	hi = sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].ChangedAt.Before(end)
	})
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// lastIndexAtOrBefore returns the index of the last entry with
// ChangedAt <= t, or -1.
func (s *Segmenter) lastIndexAtOrBefore(t time.Time) int {
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].ChangedAt.After(t)
	})
	return idx - 1
}

// lastNumericAtOrBefore finds the most recent numeric-coercible state at or
// before t.
func (s *Segmenter) lastNumericAtOrBefore(t time.Time) (float64, bool) {
	for i := s.lastIndexAtOrBefore(t); i >= 0; i-- {
		if s.numeric[i] {
			return s.values[i], true
		}
	}
	return 0, false
}

// BuildNumericStats reduces numeric chunks into the aggregate consumed by
// the threshold optimizer. Returns nil when there are no chunks.
func BuildNumericStats(chunks []SensorChunk) *NumericStateStats {
	if len(chunks) == 0 {
		return nil
	}

	stats := &NumericStateStats{
		IsNumeric: true,
		Min:       chunks[0].Value,
		Max:       chunks[0].Value,
	}
	for _, c := range chunks {
		if c.Value < stats.Min {
			stats.Min = c.Value
		}
		if c.Value > stats.Max {
			stats.Max = c.Value
		}
		vd := ValueDuration{Value: c.Value, Duration: c.Duration}
		if c.DesiredOutput {
			stats.TrueChunks = append(stats.TrueChunks, vd)
		} else {
			stats.FalseChunks = append(stats.FalseChunks, vd)
		}
	}
	return stats
}

// StateDurations accumulates per-state totals for each period class.
func StateDurations(chunks []StateChunk) map[string]StateDurationStats {
	stats := make(map[string]StateDurationStats)
	for _, c := range chunks {
		entry := stats[c.State]
		if c.DesiredOutput {
			entry.TrueDuration += c.Duration
		} else {
			entry.FalseDuration += c.Duration
		}
		stats[c.State] = entry
	}
	return stats
}
