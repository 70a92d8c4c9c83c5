package timeline

import (
	"sort"
	"strconv"
	"time"
)

// HistoryEntry is one raw state change for an entity.
type HistoryEntry struct {
	EntityID  string    `json:"entity_id"`
	State     string    `json:"state"`
	ChangedAt time.Time `json:"changed_at"`
}

// SensorChunk is a sub-interval of one period during which a numeric entity
// held one value.
type SensorChunk struct {
	Value         float64
	Duration      time.Duration
	DesiredOutput bool
}

// StateChunk is a sub-interval of one period during which an entity held one
// discrete state.
type StateChunk struct {
	State         string
	Duration      time.Duration
	DesiredOutput bool
}

// ValueDuration is a chunk reduced to its value and duration weight.
type ValueDuration struct {
	Value    float64       `json:"value"`
	Duration time.Duration `json:"duration"`
}

// NumericStateStats aggregates all chunks for one numeric entity, split by
// period polarity.
type NumericStateStats struct {
	IsNumeric   bool            `json:"is_numeric"`
	Min         float64         `json:"min"`
	Max         float64         `json:"max"`
	TrueChunks  []ValueDuration `json:"true_chunks"`
	FalseChunks []ValueDuration `json:"false_chunks"`
}

// StateDurationStats is the total time a discrete state was held inside each
// period class.
type StateDurationStats struct {
	TrueDuration  time.Duration
	FalseDuration time.Duration
}

// SortHistory returns a copy of the entries ordered by change time. Raw
// history may arrive out of order or with duplicate timestamps, so every
// consumer sorts defensively once up front.
func SortHistory(history []HistoryEntry) []HistoryEntry {
	sorted := make([]HistoryEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChangedAt.Before(sorted[j].ChangedAt)
	})
	return sorted
}

// IsNumericEntity reports whether an entity's history is predominantly
// numeric. It samples up to the first 10 entries, ignores unavailable and
// unknown placeholders, and requires at least 70% of the sample to parse as
// a float.
func IsNumericEntity(history []HistoryEntry) bool {
	if len(history) == 0 {
		return false
	}

	sampleSize := len(history)
	if sampleSize > 10 {
		sampleSize = 10
	}

	numericCount := 0
	for i := 0; i < sampleSize; i++ {
		state := history[i].State
		if state == "unavailable" || state == "unknown" {
			continue
		}
		if _, err := strconv.ParseFloat(state, 64); err == nil {
			numericCount++
		}
	}

	return numericCount >= int(float64(sampleSize)*0.7)
}
