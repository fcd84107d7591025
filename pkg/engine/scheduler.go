// Package engine drives analysis sessions: the stage scheduler batches
// agents through the four waves and the coordinator wraps one full run from
// quote bootstrap to the terminal aggregate event.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tickermind/tickermind/pkg/agent"
	"github.com/tickermind/tickermind/pkg/agent/prompt"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/models"
)

// Scheduler runs the enabled spec set through stages 1..4. Stages are
// strictly serialised; within a stage, agents run in batches whose size is
// the per-stage cap.
type Scheduler struct {
	runner   *agent.Runner
	settings config.SchedulerSettings
	log      *slog.Logger
}

// NewScheduler creates a scheduler around one agent runner.
func NewScheduler(runner *agent.Runner, settings config.SchedulerSettings, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		settings: settings,
		log:      logger.With("component", "engine.scheduler"),
	}
}

// RunInput is one scheduling pass over a session.
type RunInput struct {
	Session *models.Session
	Stock   *models.StockContext

	// Specs is the enabled set, already ordered by stage then id.
	Specs []config.AgentSpec

	// Stages restricts the run to a subset of 1..4; empty means all.
	Stages []int

	// OperatorInstructions maps agent id to a verbatim prompt addendum.
	OperatorInstructions map[string]string

	Sink events.ProgressSink
}

// Run executes all requested stages and returns once every scheduled agent
// has reached a terminal state. Cancellation stops new batches from
// starting; in-flight agents terminate through their own cancel paths.
func (s *Scheduler) Run(ctx context.Context, in RunInput) {
	log := s.log.With("session_id", in.Session.ID)

	// 1. Partition the enabled set by stage.
	byStage := make(map[int][]config.AgentSpec, config.MaxStage)
	for _, spec := range in.Specs {
		byStage[spec.Stage] = append(byStage[spec.Stage], spec)
	}

	// 2. Pre-register records so aggregation sees every scheduled agent,
	// including ones a cancel prevents from starting.
	scheduled := make(map[string]config.AgentSpec, len(in.Specs))
	for stage := config.MinStage; stage <= config.MaxStage; stage++ {
		if !stageRequested(stage, in.Stages) {
			continue
		}
		for _, spec := range byStage[stage] {
			scheduled[spec.ID] = spec
			in.Session.AddRecord(&models.AgentRecord{
				AgentID: spec.ID,
				Role:    spec.Role,
				Stage:   spec.Stage,
				Status:  models.AgentStatusIdle,
			})
		}
	}

	// 3. Walk the stages in order.
	for stage := config.MinStage; stage <= config.MaxStage; stage++ {
		if !stageRequested(stage, in.Stages) {
			continue
		}
		specs := byStage[stage]
		if len(specs) == 0 {
			continue
		}
		if ctx.Err() != nil {
			log.Info("cancelled before stage", "stage", stage)
			return
		}

		in.Session.AdvanceStage(stage)
		in.Sink.Emit(events.Event{
			Type:      events.EventTypeStageStarted,
			SessionID: in.Session.ID,
			Timestamp: events.Now(),
			Stage:     stage,
		})
		log.Info("stage started", "stage", stage, "agents", len(specs))

		s.runStage(ctx, in, scheduled, specs)

		in.Sink.Emit(events.Event{
			Type:      events.EventTypeStageCompleted,
			SessionID: in.Session.ID,
			Timestamp: events.Now(),
			Stage:     stage,
		})
		log.Info("stage completed", "stage", stage)
	}
}

// runStage executes one stage in batches. The next batch starts only after
// every agent of the prior batch reached a terminal state.
func (s *Scheduler) runStage(ctx context.Context, in RunInput, scheduled map[string]config.AgentSpec, specs []config.AgentSpec) {
	batchSize := s.settings.BatchSize(specs[0].Stage)

	for start := 0; start < len(specs); start += batchSize {
		if ctx.Err() != nil {
			return
		}
		end := start + batchSize
		if end > len(specs) {
			end = len(specs)
		}
		batch := specs[start:end]

		var wg sync.WaitGroup
		for _, spec := range batch {
			// Priors are captured before launch: the batch's siblings have
			// not produced output yet and never appear.
			priors := s.buildPriors(in.Session, scheduled, spec)

			wg.Add(1)
			go func(spec config.AgentSpec, priors []prompt.PriorOutput) {
				defer wg.Done()
				s.runner.Run(ctx, agent.Task{
					SessionID:           in.Session.ID,
					Spec:                spec,
					Stock:               in.Stock,
					Priors:              priors,
					OperatorInstruction: in.OperatorInstructions[spec.ID],
					Record:              in.Session.Record(spec.ID),
					Sink:                in.Sink,
				})
			}(spec, priors)
		}
		wg.Wait()
	}
}

// buildPriors resolves the spec's dependencies against the session records.
// Only upstreams scheduled in this session appear; a scheduled upstream
// that did not complete contributes an empty text, which the prompt builder
// renders as an unavailable marker.
func (s *Scheduler) buildPriors(session *models.Session, scheduled map[string]config.AgentSpec, spec config.AgentSpec) []prompt.PriorOutput {
	priors := make([]prompt.PriorOutput, 0, len(spec.Dependencies))
	for _, dep := range spec.Dependencies {
		upstream, ok := scheduled[dep]
		if !ok {
			continue
		}
		text := ""
		if rec := session.Record(dep); rec != nil && rec.Status == models.AgentStatusCompleted {
			text = rec.Output
		}
		priors = append(priors, prompt.PriorOutput{
			AgentID: dep,
			Role:    upstream.Role,
			Text:    text,
		})
	}
	return priors
}

func stageRequested(stage int, stages []int) bool {
	if len(stages) == 0 {
		return true
	}
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}
