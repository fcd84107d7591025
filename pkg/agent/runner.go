// Package agent runs a single analyst agent through its lifecycle: gather
// evidence, assemble the prompt, wait for concurrency budget, call the LLM,
// and write exactly one terminal state to the agent record.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tickermind/tickermind/pkg/agent/prompt"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/evidence"
	"github.com/tickermind/tickermind/pkg/governor"
	"github.com/tickermind/tickermind/pkg/llm"
	"github.com/tickermind/tickermind/pkg/models"
)

// Runner executes agents. It is stateless across runs; all per-run state
// lives in the Task and its record.
type Runner struct {
	governor  *governor.Governor
	collector *evidence.Collector
	clients   *llm.Registry
	timeouts  config.TimeoutSettings
	retry     config.RetrySettings
	log       *slog.Logger
}

// NewRunner wires a runner from its collaborators.
func NewRunner(gov *governor.Governor, collector *evidence.Collector, clients *llm.Registry, timeouts config.TimeoutSettings, retry config.RetrySettings, logger *slog.Logger) *Runner {
	return &Runner{
		governor:  gov,
		collector: collector,
		clients:   clients,
		timeouts:  timeouts,
		retry:     retry,
		log:       logger.With("component", "agent.runner"),
	}
}

// Task is one agent execution within a session. Record is owned by this
// run until Run returns; the caller must not read it concurrently.
type Task struct {
	SessionID string
	Spec      config.AgentSpec
	Stock     *models.StockContext

	// Priors holds upstream outputs in dependency order. Entries for
	// failed upstreams carry an empty Text.
	Priors []prompt.PriorOutput

	OperatorInstruction string

	Record *models.AgentRecord
	Sink   events.ProgressSink
}

// Run executes the agent to a terminal state. It never returns an error:
// every failure mode is recorded on the agent record and emitted as a
// terminal event.
func (r *Runner) Run(ctx context.Context, task Task) {
	spec := task.Spec
	record := task.Record
	log := r.log.With("session_id", task.SessionID, "agent_id", spec.ID)

	record.Start(time.Now())

	task.Sink.Emit(events.Event{
		Type:      events.EventTypeAgentStarted,
		SessionID: task.SessionID,
		Timestamp: events.Now(),
		Stage:     spec.Stage,
		AgentID:   spec.ID,
		Role:      spec.Role,
	})

	ctx, cancel := context.WithTimeout(ctx, r.timeouts.Agent)
	defer cancel()

	// An unauthenticated provider fails the agent before evidence is
	// fetched or any governor token is consumed.
	client, err := r.clients.ClientFor(spec.Binding.Provider)
	if err != nil {
		log.Warn("agent failed before dispatch", "error", err)
		r.finish(task, models.AgentStatusFailed, "", llm.KindOf(err), err.Error(), "")
		return
	}

	record.SetStatus(models.AgentStatusFetchingEvidence)
	bundle := r.collector.Collect(ctx, task.SessionID, spec.ID, task.Stock.Symbol, spec.EvidenceBindings)
	record.SetEvidence(bundle)

	task.Sink.Emit(events.Event{
		Type:      events.EventTypeAgentEvidence,
		SessionID: task.SessionID,
		Timestamp: events.Now(),
		Stage:     spec.Stage,
		AgentID:   spec.ID,
		Role:      spec.Role,
		Evidence:  bundle,
	})

	record.SetStatus(models.AgentStatusAssembling)
	msgs := prompt.Build(prompt.Input{
		Spec:                spec,
		Stock:               task.Stock,
		Evidence:            bundle,
		PriorOutputs:        task.Priors,
		OperatorInstruction: task.OperatorInstruction,
	})
	record.SetPromptChars(msgs.Chars())

	req := llm.Request{
		Model:           spec.Binding.Model,
		SystemPrompt:    msgs.System,
		UserPrompt:      msgs.User,
		Temperature:     spec.Binding.Temperature,
		MaxOutputTokens: spec.OutputTokenCap(),
	}

	attempts := 1 + r.retry.AgentAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		record.SetAttempt(attempt)

		record.SetStatus(models.AgentStatusAwaitingBudget)
		release, err := r.governor.Acquire(ctx, spec.Binding.Provider)
		if err != nil {
			kind := llm.KindOf(err)
			status := models.AgentStatusFailed
			if kind == models.ErrorKindCancelled {
				status = models.AgentStatusCancelled
			}
			r.finish(task, status, "", kind, "concurrency budget not acquired: "+err.Error(), "")
			return
		}

		record.SetStatus(models.AgentStatusCallingLLM)
		llmCtx, llmCancel := context.WithTimeout(ctx, r.timeouts.LLMCall)
		resp, err := client.Complete(llmCtx, req)
		llmCancel()
		release()

		if err == nil {
			log.Info("agent completed",
				"attempt", attempt,
				"prompt_chars", record.PromptChars,
				"output_chars", len(resp.Content),
				"total_tokens", resp.Usage.TotalTokens)
			r.finish(task, models.AgentStatusCompleted, resp.Content, "", "", resp.ProviderCode)
			return
		}

		kind := llm.KindOf(err)
		switch {
		case kind == models.ErrorKindCancelled:
			r.finish(task, models.AgentStatusCancelled, "", kind, err.Error(), providerCode(err))
			return
		case kind == models.ErrorKindTimeout && attempt < attempts && ctx.Err() == nil:
			log.Warn("agent attempt timed out, retrying", "attempt", attempt)
			continue
		default:
			log.Warn("agent failed", "attempt", attempt, "error_kind", kind, "error", err)
			r.finish(task, models.AgentStatusFailed, "", kind, err.Error(), providerCode(err))
			return
		}
	}
}

// finish writes the single terminal state and emits the matching event.
func (r *Runner) finish(task Task, status models.AgentStatus, output string, kind models.ErrorKind, message, code string) {
	record := task.Record
	if !record.Finish(time.Now(), status, output, kind, message, code) {
		// Re-entry is a bug; keep the first terminal write.
		r.log.Error("duplicate terminal write suppressed", "agent_id", record.AgentID, "status", status)
		return
	}

	eventType := events.EventTypeAgentCompleted
	switch status {
	case models.AgentStatusFailed:
		eventType = events.EventTypeAgentFailed
	case models.AgentStatusCancelled:
		eventType = events.EventTypeAgentCancelled
	}

	task.Sink.Emit(events.Event{
		Type:         eventType,
		SessionID:    task.SessionID,
		Timestamp:    events.Now(),
		Stage:        task.Spec.Stage,
		AgentID:      task.Spec.ID,
		Role:         task.Spec.Role,
		Output:       output,
		ErrorKind:    kind,
		ErrorMessage: message,
		Attempt:      record.Attempt,
		ElapsedMs:    record.Elapsed().Milliseconds(),
	})
}

func providerCode(err error) string {
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		return lerr.ProviderCode
	}
	return ""
}
