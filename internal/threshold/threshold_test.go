package threshold

import (
	"testing"
	"time"

	"github.com/saaga0h/watson-platform/internal/timeline"
)

func ptr(v float64) *float64 { return &v }

func chunks(pairs ...timeline.ValueDuration) []timeline.ValueDuration {
	return pairs
}

func vd(value float64, d time.Duration) timeline.ValueDuration {
	return timeline.ValueDuration{Value: value, Duration: d}
}

func TestScoreSymmetricUnderClassSwap(t *testing.T) {
	trueChunks := chunks(vd(80, time.Hour), vd(85, 30*time.Minute), vd(60, 10*time.Minute))
	falseChunks := chunks(vd(20, 2*time.Hour), vd(25, time.Hour))

	cases := []struct {
		above, below *float64
	}{
		{ptr(50), nil},
		{nil, ptr(50)},
		{ptr(22), ptr(82)},
	}
	for _, c := range cases {
		a := Score(trueChunks, falseChunks, c.above, c.below)
		b := Score(falseChunks, trueChunks, c.above, c.below)
		if a != b {
			t.Errorf("score not symmetric under class swap: %v vs %v", a, b)
		}
	}
}

func TestScoreIdenticalDistributions(t *testing.T) {
	same := chunks(vd(10, time.Hour), vd(20, time.Hour), vd(30, time.Hour))

	for _, above := range []*float64{nil, ptr(5), ptr(15), ptr(25)} {
		for _, below := range []*float64{nil, ptr(15), ptr(25), ptr(35)} {
			if got := Score(same, same, above, below); got != 0 {
				t.Errorf("Score(same, same, %v, %v) = %v, want 0", above, below, got)
			}
		}
	}
}

func TestScoreCleanSeparation(t *testing.T) {
	trueChunks := chunks(vd(80, time.Hour), vd(80, 30*time.Minute))
	falseChunks := chunks(vd(20, time.Hour), vd(20, 2*time.Hour))

	if got := Score(trueChunks, falseChunks, ptr(50), nil); got != 1 {
		t.Errorf("Score = %v, want 1 for a cleanly separating threshold", got)
	}
}

func TestFindOptimalSeparatesClasses(t *testing.T) {
	stats := &timeline.NumericStateStats{
		IsNumeric:   true,
		Min:         20,
		Max:         85,
		TrueChunks:  chunks(vd(80, time.Second), vd(85, time.Second)),
		FalseChunks: chunks(vd(20, time.Second), vd(25, time.Second)),
	}

	opt := FindOptimal(stats)
	if opt.Above == nil {
		t.Fatalf("no above bound found: %+v", opt)
	}
	if *opt.Above < 25 || *opt.Above >= 80 {
		t.Errorf("above = %v, want a bound in [25, 80)", *opt.Above)
	}
	if score := Score(stats.TrueChunks, stats.FalseChunks, opt.Above, opt.Below); score <= 0.9 {
		t.Errorf("winning threshold scores %v, want > 0.9", score)
	}
}

func TestFindOptimalDeterministic(t *testing.T) {
	stats := &timeline.NumericStateStats{
		IsNumeric:   true,
		Min:         10,
		Max:         90,
		TrueChunks:  chunks(vd(70, time.Hour), vd(80, 30*time.Minute), vd(55, 10*time.Minute)),
		FalseChunks: chunks(vd(10, 2*time.Hour), vd(30, time.Hour), vd(45, 20*time.Minute)),
	}

	first := FindOptimal(stats)
	for i := 0; i < 5; i++ {
		again := FindOptimal(stats)
		if !equalBound(first.Above, again.Above) || !equalBound(first.Below, again.Below) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestFindOptimalDegenerateInputs(t *testing.T) {
	if opt := FindOptimal(nil); opt.Above != nil || opt.Below != nil {
		t.Errorf("nil stats yielded %+v", opt)
	}

	onlyTrue := &timeline.NumericStateStats{
		IsNumeric:  true,
		Min:        10,
		Max:        20,
		TrueChunks: chunks(vd(10, time.Hour)),
	}
	if opt := FindOptimal(onlyTrue); opt.Above != nil || opt.Below != nil {
		t.Errorf("single-class stats yielded %+v", opt)
	}

	// All chunks share one value: nothing discriminates, but the search
	// still returns its first candidate rather than failing.
	flat := &timeline.NumericStateStats{
		IsNumeric:   true,
		Min:         50,
		Max:         50,
		TrueChunks:  chunks(vd(50, time.Hour)),
		FalseChunks: chunks(vd(50, time.Hour)),
	}
	if opt := FindOptimal(flat); opt.Above == nil && opt.Below == nil {
		t.Errorf("flat stats yielded no threshold: %+v", opt)
	}
}

func TestOptimalMatches(t *testing.T) {
	tests := []struct {
		name  string
		opt   Optimal
		value float64
		want  bool
	}{
		{"above excludes bound", Optimal{Above: ptr(25)}, 25, false},
		{"above includes greater", Optimal{Above: ptr(25)}, 25.01, true},
		{"below includes bound", Optimal{Below: ptr(80)}, 80, true},
		{"below excludes greater", Optimal{Below: ptr(80)}, 80.01, false},
		{"range inside", Optimal{Above: ptr(25), Below: ptr(80)}, 50, true},
		{"range outside", Optimal{Above: ptr(25), Below: ptr(80)}, 90, false},
		{"empty never matches", Optimal{}, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opt.Matches(tt.value); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestOptimalDescribe(t *testing.T) {
	tests := []struct {
		opt  Optimal
		want string
	}{
		{Optimal{Above: ptr(25)}, "> 25.00"},
		{Optimal{Below: ptr(80)}, "<= 80.00"},
		{Optimal{Above: ptr(25), Below: ptr(80)}, "25.00 < value <= 80.00"},
		{Optimal{}, "numeric"},
	}
	for _, tt := range tests {
		if got := tt.opt.Describe(); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	a := &timeline.NumericStateStats{
		TrueChunks:  chunks(vd(80, time.Second)),
		FalseChunks: chunks(vd(20, time.Second)),
	}
	b := &timeline.NumericStateStats{
		TrueChunks:  chunks(vd(80, time.Second)),
		FalseChunks: chunks(vd(21, time.Second)),
	}

	if CacheKey(a) == CacheKey(b) {
		t.Error("distinct stats produced the same cache key")
	}
	if CacheKey(a) != CacheKey(a) {
		t.Error("cache key is not stable")
	}
}

func equalBound(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
