package periods

import (
	"errors"
	"testing"
	"time"
)

func mustPeriod(t *testing.T, start, end time.Time, isTrue bool, label string) TimePeriod {
	t.Helper()
	p, err := New(start, end, isTrue, label)
	if err != nil {
		t.Fatalf("failed to create period: %v", err)
	}
	return p
}

func TestNew_RejectsInvertedRange(t *testing.T) {
	now := time.Now()

	if _, err := New(now, now, true, ""); err == nil {
		t.Error("expected error for zero-length period")
	}
	if _, err := New(now.Add(time.Hour), now, true, ""); err == nil {
		t.Error("expected error for inverted period")
	}
	if _, err := New(now, now.Add(time.Hour), true, ""); err != nil {
		t.Errorf("expected valid period, got %v", err)
	}
}

func TestRequireBothClasses(t *testing.T) {
	now := time.Now()
	truePeriod := mustPeriod(t, now, now.Add(time.Hour), true, "")
	falsePeriod := mustPeriod(t, now.Add(time.Hour), now.Add(2*time.Hour), false, "")

	tests := []struct {
		name    string
		periods []TimePeriod
		wantErr error
	}{
		{"both classes", []TimePeriod{truePeriod, falsePeriod}, nil},
		{"missing true", []TimePeriod{falsePeriod}, ErrNoTruePeriod},
		{"missing false", []TimePeriod{truePeriod}, ErrNoFalsePeriod},
		{"empty", nil, ErrNoTruePeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireBothClasses(tt.periods)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMerge_AdjacentSamePolarity(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	a := mustPeriod(t, base, base.Add(time.Hour), true, "morning")
	// 30 second gap, within tolerance
	b := mustPeriod(t, base.Add(time.Hour+30*time.Second), base.Add(2*time.Hour), true, "")

	merged := Merge([]TimePeriod{b, a})
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged period, got %d", len(merged))
	}
	if merged[0].ID != a.ID {
		t.Errorf("merged period should keep the earlier id")
	}
	if !merged[0].End.Equal(b.End) {
		t.Errorf("merged period should extend to the later end")
	}
}

func TestMerge_RespectsToleranceAndPolarity(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	a := mustPeriod(t, base, base.Add(time.Hour), true, "")
	// gap beyond the 60 second tolerance
	farApart := mustPeriod(t, base.Add(time.Hour+2*time.Minute), base.Add(2*time.Hour), true, "")
	// adjacent but opposite polarity
	opposite := mustPeriod(t, base.Add(2*time.Hour), base.Add(3*time.Hour), false, "")

	merged := Merge([]TimePeriod{a, farApart, opposite})
	if len(merged) != 3 {
		t.Fatalf("expected 3 periods, got %d", len(merged))
	}
}

func TestMerge_OverlappingContained(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	outer := mustPeriod(t, base, base.Add(4*time.Hour), true, "")
	inner := mustPeriod(t, base.Add(time.Hour), base.Add(2*time.Hour), true, "")

	merged := Merge([]TimePeriod{outer, inner})
	if len(merged) != 1 {
		t.Fatalf("expected 1 period, got %d", len(merged))
	}
	if !merged[0].End.Equal(outer.End) {
		t.Errorf("contained period must not shrink the merged end")
	}
}

func TestDelete(t *testing.T) {
	now := time.Now()
	a := mustPeriod(t, now, now.Add(time.Hour), true, "")
	b := mustPeriod(t, now.Add(time.Hour), now.Add(2*time.Hour), false, "")

	remaining := Delete([]TimePeriod{a, b}, a.ID)
	if len(remaining) != 1 || remaining[0].ID != b.ID {
		t.Errorf("expected only %s to remain, got %v", b.ID, remaining)
	}

	unchanged := Delete([]TimePeriod{a, b}, "no-such-id")
	if len(unchanged) != 2 {
		t.Errorf("expected both periods to remain, got %d", len(unchanged))
	}
}

func TestGenerateDaylight(t *testing.T) {
	// Two full days in Helsinki at the equinox: daylight and night alternate
	from := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	generated, err := GenerateDaylight(60.1695, 24.9354, from, to, true)
	if err != nil {
		t.Fatalf("GenerateDaylight failed: %v", err)
	}
	if len(generated) < 4 {
		t.Fatalf("expected at least 4 alternating periods, got %d", len(generated))
	}

	if err := Validate(generated); err != nil {
		t.Errorf("generated periods must validate: %v", err)
	}
	if err := RequireBothClasses(generated); err != nil {
		t.Errorf("generated periods must contain both classes: %v", err)
	}

	for i, p := range generated {
		if p.Start.Before(from) || p.End.After(to) {
			t.Errorf("period %d [%s, %s] escapes the requested range", i, p.Start, p.End)
		}
		if i > 0 && p.Start.Before(generated[i-1].End) {
			t.Errorf("period %d overlaps the previous one", i)
		}
		wantLabel := "night"
		if p.IsTruePeriod {
			wantLabel = "daylight"
		}
		if p.Label != wantLabel {
			t.Errorf("period %d: expected label %s, got %s", i, wantLabel, p.Label)
		}
	}
}
