package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/saaga0h/watson-platform/internal/periods"
	"github.com/saaga0h/watson-platform/internal/probability"
	"github.com/saaga0h/watson-platform/internal/threshold"
	"github.com/saaga0h/watson-platform/internal/timeline"
)

// Status is the lifecycle stage of one entity within a batch.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusFetching  Status = "fetching"
	StatusFetched   Status = "fetched"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// EntityState is a point-in-time snapshot of one entity's progress.
type EntityState struct {
	EntityID string `json:"entity_id"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
}

// EntityResult is the terminal outcome for one entity: either its scored
// candidates or the error that stopped it.
type EntityResult struct {
	EntityID   string
	Candidates []probability.EntityProbability
	Err        error
}

// HistorySource retrieves raw state-change history for a set of entities.
type HistorySource interface {
	FetchHistory(ctx context.Context, entityIDs []string, start, end time.Time) (map[string][]timeline.HistoryEntry, error)
}

// Options tunes a batch run. Zero values pick the defaults.
type Options struct {
	// FetchConcurrency bounds the number of in-flight history fetches.
	// Defaults to 2.
	FetchConcurrency int

	// AnalysisConcurrency is the analysis worker count. Defaults to
	// NumCPU clamped into [2, 8].
	AnalysisConcurrency int

	// OnStatus is invoked for every status change, in order, from a
	// single goroutine.
	OnStatus func(EntityState)

	// OnResult is invoked once per entity in completion order, from the
	// same goroutine as OnStatus.
	OnResult func(EntityResult)
}

// Orchestrator runs discrimination analysis batches against a history
// source. One orchestrator is safe to reuse across batches; the threshold
// cache lives per run.
type Orchestrator struct {
	source HistorySource
	logger *slog.Logger
	opts   Options

	// analyzeFn runs the analysis for one entity. Tests substitute it to
	// drive worker failure paths.
	analyzeFn func(*batchRun, string, []timeline.HistoryEntry) []probability.EntityProbability
}

// New creates an orchestrator.
func New(source HistorySource, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 2
	}
	if opts.AnalysisConcurrency <= 0 {
		opts.AnalysisConcurrency = defaultWorkers()
	}
	o := &Orchestrator{
		source: source,
		logger: logger.With("component", "orchestrator"),
		opts:   opts,
	}
	o.analyzeFn = o.analyze
	return o
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}

// event is the closed message alphabet of the batch loop. Only the two
// concrete types below flow through the events channel.
type event interface{ isEvent() }

type statusEvent struct {
	entityID string
	status   Status
	message  string
}

type resultEvent struct {
	entityID   string
	candidates []probability.EntityProbability
	err        error
}

func (statusEvent) isEvent() {}
func (resultEvent) isEvent() {}

type analysisTask struct {
	entityID string
	history  []timeline.HistoryEntry
}

// batchRun carries the per-run state shared by workers.
type batchRun struct {
	periods []periods.TimePeriod

	mu             sync.Mutex
	thresholdCache map[string]threshold.Optimal
}

// Run analyzes every entity against the labeled period set over the given
// window. Results arrive in completion order. A cancelled context stops
// scheduling new work and returns only the entities processed before the
// cancellation, together with the context's error; per-entity failures are
// carried inside their EntityResult and never abort the batch.
func (o *Orchestrator) Run(ctx context.Context, entityIDs []string, periodSet []periods.TimePeriod, start, end time.Time) ([]EntityResult, error) {
	if err := periods.RequireBothClasses(periodSet); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	run := &batchRun{
		periods:        periods.Merge(periodSet),
		thresholdCache: make(map[string]threshold.Optimal),
	}

	events := make(chan event, len(entityIDs)*4)
	tasks := make(chan analysisTask, len(entityIDs))

	o.logger.Info("Starting analysis batch",
		"entities", len(entityIDs),
		"periods", len(run.periods),
		"fetchConcurrency", o.opts.FetchConcurrency,
		"analysisConcurrency", o.opts.AnalysisConcurrency)

	// Fetch stage: one goroutine per entity, gated by a weighted semaphore.
	sem := semaphore.NewWeighted(int64(o.opts.FetchConcurrency))
	var fetchWG sync.WaitGroup
	for _, id := range entityIDs {
		events <- statusEvent{entityID: id, status: StatusQueued}
		fetchWG.Add(1)
		go func(entityID string) {
			defer fetchWG.Done()
			o.fetchEntity(ctx, sem, entityID, start, end, events, tasks)
		}(id)
	}

	// Analysis stage: a fixed-size worker pool. A crashed worker fails only
	// its in-flight entity and is replaced, so the pool never shrinks.
	var workerWG sync.WaitGroup
	for i := 0; i < o.opts.AnalysisConcurrency; i++ {
		o.spawnWorker(ctx, run, tasks, events, &workerWG)
	}

	go func() {
		fetchWG.Wait()
		close(tasks)
		workerWG.Wait()
		close(events)
	}()

	// The event loop is the only goroutine touching statuses and results.
	statuses := make(map[string]EntityState, len(entityIDs))
	var results []EntityResult
	for ev := range events {
		switch e := ev.(type) {
		case statusEvent:
			state := EntityState{EntityID: e.entityID, Status: e.status, Message: e.message}
			statuses[e.entityID] = state
			if o.opts.OnStatus != nil {
				o.opts.OnStatus(state)
			}
		case resultEvent:
			state := EntityState{EntityID: e.entityID, Status: StatusCompleted}
			if e.err != nil {
				state.Status = StatusError
				state.Message = e.err.Error()
			}
			statuses[e.entityID] = state
			if o.opts.OnStatus != nil {
				o.opts.OnStatus(state)
			}

			result := EntityResult{EntityID: e.entityID, Candidates: e.candidates, Err: e.err}
			results = append(results, result)
			if o.opts.OnResult != nil {
				o.opts.OnResult(result)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		// Entities that never ran because of the cancellation are dropped;
		// the caller gets only the work that actually happened.
		kept := results[:0]
		for _, r := range results {
			if r.Err != nil && errors.Is(r.Err, err) {
				continue
			}
			kept = append(kept, r)
		}
		o.logger.Warn("Analysis batch cancelled", "processed", len(kept), "entities", len(entityIDs))
		return kept, err
	}

	o.logger.Info("Analysis batch finished", "entities", len(entityIDs), "results", len(results))
	return results, nil
}

func (o *Orchestrator) fetchEntity(ctx context.Context, sem *semaphore.Weighted, entityID string, start, end time.Time, events chan<- event, tasks chan<- analysisTask) {
	if err := sem.Acquire(ctx, 1); err != nil {
		events <- resultEvent{entityID: entityID, err: &FetchError{EntityID: entityID, Err: err}}
		return
	}
	defer sem.Release(1)

	events <- statusEvent{entityID: entityID, status: StatusFetching}

	histories, err := o.source.FetchHistory(ctx, []string{entityID}, start, end)
	if err != nil {
		o.logger.Warn("History fetch failed", "entity", entityID, "error", err)
		events <- resultEvent{entityID: entityID, err: &FetchError{EntityID: entityID, Err: err}}
		return
	}

	history := histories[entityID]
	events <- statusEvent{entityID: entityID, status: StatusFetched, message: fmt.Sprintf("%d state changes", len(history))}
	tasks <- analysisTask{entityID: entityID, history: history}
}

func (o *Orchestrator) spawnWorker(ctx context.Context, run *batchRun, tasks <-chan analysisTask, events chan<- event, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		var current *analysisTask
		defer func() {
			if r := recover(); r != nil {
				if current != nil {
					o.logger.Error("Analysis worker crashed", "entity", current.entityID, "panic", r)
					events <- resultEvent{
						entityID: current.entityID,
						err:      &AnalysisError{EntityID: current.entityID, Err: fmt.Errorf("panic: %v", r)},
					}
				}
				// Replace the crashed worker; Add happens before Done so
				// the group cannot drain early.
				o.spawnWorker(ctx, run, tasks, events, wg)
			}
			wg.Done()
		}()

		for task := range tasks {
			task := task
			current = &task

			if err := ctx.Err(); err != nil {
				events <- resultEvent{entityID: task.entityID, err: &AnalysisError{EntityID: task.entityID, Err: err}}
				current = nil
				continue
			}

			events <- statusEvent{entityID: task.entityID, status: StatusAnalyzing}
			candidates := o.analyzeFn(run, task.entityID, task.history)
			events <- resultEvent{entityID: task.entityID, candidates: candidates}
			current = nil
		}
	}()
}

func (o *Orchestrator) analyze(run *batchRun, entityID string, history []timeline.HistoryEntry) []probability.EntityProbability {
	seg := timeline.NewSegmenter(history)

	if timeline.IsNumericEntity(timeline.SortHistory(history)) {
		chunks := seg.SegmentNumeric(run.periods)
		stats := timeline.BuildNumericStats(chunks)
		if stats == nil {
			return nil
		}

		opt := run.cachedOptimal(entityID, stats)
		ep := probability.EstimateNumeric(entityID, stats, opt, run.periods)
		if ep == nil {
			return nil
		}
		return []probability.EntityProbability{*ep}
	}

	return probability.EstimateDiscrete(entityID, seg, run.periods)
}

// cachedOptimal memoizes the threshold search within one batch. Repeated
// analyses of the same entity and chunk prefix, such as a retried request
// fanning over overlapping entity lists, reuse the earlier search.
func (r *batchRun) cachedOptimal(entityID string, stats *timeline.NumericStateStats) threshold.Optimal {
	key := entityID + "|" + threshold.CacheKey(stats)

	r.mu.Lock()
	opt, ok := r.thresholdCache[key]
	r.mu.Unlock()
	if ok {
		return opt
	}

	opt = threshold.FindOptimal(stats)

	r.mu.Lock()
	r.thresholdCache[key] = opt
	r.mu.Unlock()
	return opt
}
