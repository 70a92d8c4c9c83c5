package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/watson-platform/internal/bayesconfig"
	"github.com/saaga0h/watson-platform/internal/historybuf"
	"github.com/saaga0h/watson-platform/internal/orchestrator"
	"github.com/saaga0h/watson-platform/internal/periods"
	"github.com/saaga0h/watson-platform/internal/probability"
	"github.com/saaga0h/watson-platform/internal/simulator"
	"github.com/saaga0h/watson-platform/pkg/config"
	"github.com/saaga0h/watson-platform/pkg/mqtt"
	"github.com/saaga0h/watson-platform/pkg/redis"
)

// Agent receives analysis and simulation requests over MQTT, runs them
// against the history source, and publishes progress and results.
type Agent struct {
	mqtt   mqtt.Client
	redis  redis.Client
	source orchestrator.HistorySource
	cfg    *config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAgent creates an analyzer agent with the given dependencies.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, source orchestrator.HistorySource, cfg *config.Config, logger *slog.Logger) *Agent {
	a := &Agent{
		mqtt:   mqttClient,
		redis:  redisClient,
		source: source,
		cfg:    cfg,
		logger: logger,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a
}

// Start connects to the broker, subscribes to the request topics and blocks
// until the context is cancelled. In-flight requests inherit the context,
// so shutdown cancels them and they publish partial results.
func (a *Agent) Start(ctx context.Context) error {
	a.cancel()
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("Starting analyzer agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress())

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	if err := a.mqtt.Subscribe(mqtt.TopicAnalyzeRequest, 1, a.handleAnalyzeMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicAnalyzeRequest, err)
	}
	if err := a.mqtt.Subscribe(mqtt.TopicSimulateRequest, 1, a.handleSimulateMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicSimulateRequest, err)
	}

	a.logger.Info("Analyzer agent started and ready to receive requests",
		"analyze_topic", mqtt.TopicAnalyzeRequest,
		"simulate_topic", mqtt.TopicSimulateRequest)

	<-ctx.Done()
	a.logger.Info("Analyzer agent stopping")
	a.cancel()
	a.wg.Wait()

	return nil
}

// Stop gracefully stops the agent.
func (a *Agent) Stop() error {
	a.logger.Info("Stopping analyzer agent")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Analyzer agent stopped")
	return nil
}

func (a *Agent) handleAnalyzeMessage(msg mqtt.Message) {
	req, err := parseAnalyzeRequest(msg.Payload())
	if err != nil {
		a.logger.Error("Rejected analyze request", "error", err)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runAnalyze(a.ctx, req)
	}()
}

func (a *Agent) handleSimulateMessage(msg mqtt.Message) {
	req, err := parseSimulateRequest(msg.Payload())
	if err != nil {
		a.logger.Error("Rejected simulate request", "error", err)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runSimulate(a.ctx, req)
	}()
}

func (a *Agent) runAnalyze(ctx context.Context, req *AnalyzeRequest) {
	started := time.Now()
	a.logger.Info("Running analysis",
		"request_id", req.RequestID,
		"entities", len(req.EntityIDs),
		"periods", len(req.Periods))

	periodSet := req.Periods
	if req.DaylightPeriods {
		generated, err := periods.GenerateDaylight(a.cfg.Latitude, a.cfg.Longitude, req.Start, req.End, req.TrueDuringDaylight)
		if err != nil {
			a.publishError(mqtt.ResultTopic(req.RequestID), req.RequestID, err)
			return
		}
		periodSet = generated
	}

	completed := 0
	o := orchestrator.New(a.source, a.logger, orchestrator.Options{
		FetchConcurrency:    a.cfg.FetchConcurrency,
		AnalysisConcurrency: a.cfg.AnalysisConcurrency,
		OnStatus: func(state orchestrator.EntityState) {
			if state.Status == orchestrator.StatusCompleted || state.Status == orchestrator.StatusError {
				completed++
			}
			a.publishProgress(req.RequestID, state, completed, len(req.EntityIDs))
		},
	})

	results, err := o.Run(ctx, req.EntityIDs, periodSet, req.Start, req.End)
	if err != nil && len(results) == 0 {
		a.publishError(mqtt.ResultTopic(req.RequestID), req.RequestID, err)
		return
	}

	result := AnalyzeResult{RequestID: req.RequestID}
	for _, r := range results {
		if r.Err != nil {
			result.Errors = append(result.Errors, EntityError{EntityID: r.EntityID, Error: r.Err.Error()})
			continue
		}
		result.Candidates = append(result.Candidates, r.Candidates...)
	}
	probability.Rank(result.Candidates)

	if yamlConfig, err := a.renderConfig(req, result.Candidates); err != nil {
		a.logger.Warn("Failed to render sensor config", "request_id", req.RequestID, "error", err)
	} else {
		result.ConfigYAML = yamlConfig
	}

	a.publishJSON(mqtt.ResultTopic(req.RequestID), result)
	a.logger.Info("Analysis finished",
		"request_id", req.RequestID,
		"candidates", len(result.Candidates),
		"errors", len(result.Errors),
		"duration", time.Since(started))
}

func (a *Agent) renderConfig(req *AnalyzeRequest, candidates []probability.EntityProbability) (string, error) {
	observations := make([]probability.Observation, 0, len(candidates))
	for _, c := range candidates {
		observations = append(observations, c.ToObservation())
	}

	name := req.SensorName
	if name == "" {
		name = "Bayesian Sensor"
	}
	sensor := bayesconfig.Sensor{
		Name:                 name,
		Prior:                a.cfg.DefaultPrior,
		ProbabilityThreshold: a.cfg.DefaultProbabilityThreshold,
		Observations:         observations,
	}
	if req.Prior != nil {
		sensor.Prior = *req.Prior
	}
	if req.ProbabilityThreshold != nil {
		sensor.ProbabilityThreshold = *req.ProbabilityThreshold
	}

	return bayesconfig.Render(sensor)
}

func (a *Agent) runSimulate(ctx context.Context, req *SimulateRequest) {
	started := time.Now()
	a.logger.Info("Running simulation",
		"request_id", req.RequestID,
		"observations", len(req.Observations))

	entityIDs := make([]string, 0, len(req.Observations))
	seen := make(map[string]bool)
	for _, obs := range req.Observations {
		if !seen[obs.EntityID] {
			seen[obs.EntityID] = true
			entityIDs = append(entityIDs, obs.EntityID)
		}
	}

	histories, err := a.source.FetchHistory(ctx, entityIDs, req.Start, req.End)
	if err != nil {
		a.publishError(mqtt.SimulationResultTopic(req.RequestID), req.RequestID, err)
		return
	}

	store := historybuf.NewStore()
	for entityID, history := range histories {
		store.Load(entityID, history)
	}

	cfg := simulator.Config{
		Prior:          a.cfg.DefaultPrior,
		Threshold:      a.cfg.DefaultProbabilityThreshold,
		SampleInterval: time.Duration(a.cfg.DefaultSampleIntervalMin) * time.Minute,
	}
	if req.Prior != nil {
		cfg.Prior = *req.Prior
	}
	if req.ProbabilityThreshold != nil {
		cfg.Threshold = *req.ProbabilityThreshold
	}
	if req.SampleIntervalMin > 0 {
		cfg.SampleInterval = time.Duration(req.SampleIntervalMin) * time.Minute
	}

	run := simulator.Simulate(cfg, req.Observations, store, req.Start, req.End)

	a.publishJSON(mqtt.SimulationResultTopic(req.RequestID), SimulateResult{
		RequestID:   req.RequestID,
		Points:      run.Points,
		Stats:       run.Stats,
		OnIntervals: run.OnIntervals,
	})
	a.logger.Info("Simulation finished",
		"request_id", req.RequestID,
		"points", len(run.Points),
		"duration", time.Since(started))
}

func (a *Agent) publishProgress(requestID string, state orchestrator.EntityState, completed, total int) {
	a.publishJSON(mqtt.ProgressTopic(requestID), ProgressMessage{
		RequestID: requestID,
		Entity:    state,
		Completed: completed,
		Total:     total,
	})
}

func (a *Agent) publishError(topic, requestID string, err error) {
	a.logger.Error("Request failed", "request_id", requestID, "error", err)
	a.publishJSON(topic, ErrorMessage{RequestID: requestID, Error: err.Error()})
}

func (a *Agent) publishJSON(topic string, payload interface{}) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("Failed to encode message", "topic", topic, "error", err)
		return
	}
	if err := a.mqtt.Publish(topic, 1, false, encoded); err != nil {
		a.logger.Error("Failed to publish message", "topic", topic, "error", err)
	}
}
