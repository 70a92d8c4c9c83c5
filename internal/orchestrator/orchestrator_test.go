package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saaga0h/watson-platform/internal/periods"
	"github.com/saaga0h/watson-platform/internal/probability"
	"github.com/saaga0h/watson-platform/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves canned history per entity and can fail selected ones.
type fakeSource struct {
	mu          sync.Mutex
	histories   map[string][]timeline.HistoryEntry
	failing     map[string]error
	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeSource) FetchHistory(ctx context.Context, entityIDs []string, start, end time.Time) (map[string][]timeline.HistoryEntry, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]timeline.HistoryEntry)
	for _, id := range entityIDs {
		if err, ok := f.failing[id]; ok {
			return nil, err
		}
		out[id] = f.histories[id]
	}
	return out, nil
}

func testPeriods(t *testing.T, base time.Time) []periods.TimePeriod {
	t.Helper()
	truePeriod, err := periods.New(base, base.Add(4*time.Hour), true, "")
	if err != nil {
		t.Fatal(err)
	}
	falsePeriod, err := periods.New(base.Add(4*time.Hour), base.Add(8*time.Hour), false, "")
	if err != nil {
		t.Fatal(err)
	}
	return []periods.TimePeriod{truePeriod, falsePeriod}
}

func motionHistory(base time.Time) []timeline.HistoryEntry {
	return []timeline.HistoryEntry{
		{State: "off", ChangedAt: base.Add(-time.Hour)},
		{State: "on", ChangedAt: base.Add(time.Hour)},
		{State: "off", ChangedAt: base.Add(5 * time.Hour)},
	}
}

func TestRunPartialFailure(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	entityIDs := []string{"e1", "e2", "e3", "e4", "e5"}

	source := &fakeSource{
		histories: map[string][]timeline.HistoryEntry{},
		failing:   map[string]error{"e3": errors.New("recorder unavailable")},
		delay:     5 * time.Millisecond,
	}
	for _, id := range entityIDs {
		source.histories[id] = motionHistory(base)
	}

	o := New(source, testLogger(), Options{FetchConcurrency: 2})
	results, err := o.Run(context.Background(), entityIDs, testPeriods(t, base), base.Add(-24*time.Hour), base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results) != len(entityIDs) {
		t.Fatalf("got %d results, want %d", len(results), len(entityIDs))
	}

	completed, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			var fe *FetchError
			if !errors.As(r.Err, &fe) || fe.EntityID != "e3" {
				t.Errorf("unexpected error for %s: %v", r.EntityID, r.Err)
			}
			if len(r.Candidates) != 0 {
				t.Errorf("failed entity %s carries candidates", r.EntityID)
			}
			continue
		}
		completed++
		if len(r.Candidates) == 0 {
			t.Errorf("entity %s completed with no candidates", r.EntityID)
		}
	}
	if completed != 4 || failed != 1 {
		t.Errorf("completed/failed = %d/%d, want 4/1", completed, failed)
	}

	if max := source.maxInFlight.Load(); max > 2 {
		t.Errorf("observed %d concurrent fetches, want at most 2", max)
	}
}

func TestRunStatusTransitions(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		histories: map[string][]timeline.HistoryEntry{"e1": motionHistory(base)},
	}

	var mu sync.Mutex
	var seen []Status
	o := New(source, testLogger(), Options{
		OnStatus: func(s EntityState) {
			mu.Lock()
			seen = append(seen, s.Status)
			mu.Unlock()
		},
	})

	if _, err := o.Run(context.Background(), []string{"e1"}, testPeriods(t, base), base, base.Add(8*time.Hour)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Status{StatusQueued, StatusFetching, StatusFetched, StatusAnalyzing, StatusCompleted}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("status sequence = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestRunResultsInCompletionOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{histories: map[string][]timeline.HistoryEntry{}}
	entityIDs := make([]string, 6)
	for i := range entityIDs {
		entityIDs[i] = fmt.Sprintf("e%d", i)
		source.histories[entityIDs[i]] = motionHistory(base)
	}

	var mu sync.Mutex
	var callbackOrder []string
	o := New(source, testLogger(), Options{
		OnResult: func(r EntityResult) {
			mu.Lock()
			callbackOrder = append(callbackOrder, r.EntityID)
			mu.Unlock()
		},
	})

	results, err := o.Run(context.Background(), entityIDs, testPeriods(t, base), base, base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(callbackOrder) != len(results) {
		t.Fatalf("callbacks = %d, results = %d", len(callbackOrder), len(results))
	}
	for i, r := range results {
		if callbackOrder[i] != r.EntityID {
			t.Errorf("callback %d = %s, result %d = %s", i, callbackOrder[i], i, r.EntityID)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		histories: map[string][]timeline.HistoryEntry{},
		delay:     50 * time.Millisecond,
	}
	entityIDs := make([]string, 10)
	for i := range entityIDs {
		entityIDs[i] = fmt.Sprintf("e%d", i)
		source.histories[entityIDs[i]] = motionHistory(base)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	o := New(source, testLogger(), Options{FetchConcurrency: 1})
	results, err := o.Run(ctx, entityIDs, testPeriods(t, base), base, base.Add(8*time.Hour))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}

	// Unprocessed entities are dropped from the returned slice, so a
	// cancelled batch can only shrink, never pad with cancellation noise.
	if len(results) >= len(entityIDs) {
		t.Fatalf("got %d results after cancellation, want fewer than %d", len(results), len(entityIDs))
	}
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			t.Errorf("cancelled entity %s leaked into the results", r.EntityID)
		}
	}
}

func TestRunWorkerCrashRecovery(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	entityIDs := []string{"e1", "e2", "e3", "e4", "e5"}

	source := &fakeSource{histories: map[string][]timeline.HistoryEntry{}}
	for _, id := range entityIDs {
		source.histories[id] = motionHistory(base)
	}

	// A single worker must survive the crash via respawn or the remaining
	// tasks would never drain and Run would hang.
	o := New(source, testLogger(), Options{AnalysisConcurrency: 1})
	realAnalyze := o.analyzeFn
	o.analyzeFn = func(run *batchRun, entityID string, history []timeline.HistoryEntry) []probability.EntityProbability {
		if entityID == "e2" {
			panic("worker blew up")
		}
		return realAnalyze(run, entityID, history)
	}

	results, err := o.Run(context.Background(), entityIDs, testPeriods(t, base), base.Add(-24*time.Hour), base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != len(entityIDs) {
		t.Fatalf("got %d results, want %d", len(results), len(entityIDs))
	}

	completed, crashed := 0, 0
	for _, r := range results {
		if r.EntityID == "e2" {
			crashed++
			var ae *AnalysisError
			if !errors.As(r.Err, &ae) || ae.EntityID != "e2" {
				t.Errorf("crashed entity error = %v, want AnalysisError for e2", r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("entity %s failed: %v", r.EntityID, r.Err)
			continue
		}
		completed++
		if len(r.Candidates) == 0 {
			t.Errorf("entity %s completed with no candidates", r.EntityID)
		}
	}
	if completed != 4 || crashed != 1 {
		t.Errorf("completed/crashed = %d/%d, want 4/1", completed, crashed)
	}
}

func TestRunRejectsSingleClassPeriods(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	onlyTrue, err := periods.New(base, base.Add(time.Hour), true, "")
	if err != nil {
		t.Fatal(err)
	}

	o := New(&fakeSource{}, testLogger(), Options{})
	_, err = o.Run(context.Background(), []string{"e1"}, []periods.TimePeriod{onlyTrue}, base, base.Add(time.Hour))

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Errorf("Run() error = %v, want ConfigurationError", err)
	}
}

func TestRunNumericEntity(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []timeline.HistoryEntry{
		{State: "80", ChangedAt: base.Add(-time.Hour)},
		{State: "85", ChangedAt: base.Add(2 * time.Hour)},
		{State: "20", ChangedAt: base.Add(4 * time.Hour)},
		{State: "25", ChangedAt: base.Add(6 * time.Hour)},
	}
	source := &fakeSource{histories: map[string][]timeline.HistoryEntry{"sensor.lux": history}}

	o := New(source, testLogger(), Options{})
	results, err := o.Run(context.Background(), []string{"sensor.lux"}, testPeriods(t, base), base, base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("results = %+v", results)
	}

	candidates := results[0].Candidates
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 threshold candidate", len(candidates))
	}
	c := candidates[0]
	if c.OptimalThresholds == nil || c.OptimalThresholds.Above == nil {
		t.Fatalf("no threshold found: %+v", c)
	}
	if c.ProbGivenTrue <= c.ProbGivenFalse {
		t.Errorf("threshold does not discriminate: %+v", c)
	}
}
