package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tickermind/tickermind/pkg/agent"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/evidence"
	"github.com/tickermind/tickermind/pkg/governor"
	"github.com/tickermind/tickermind/pkg/llm"
	"github.com/tickermind/tickermind/pkg/models"
)

// Engine is the assembled analysis pipeline. One engine serves many
// concurrent sessions; per-session state lives in models.Session.
type Engine struct {
	registry    *config.Registry
	settings    *config.Settings
	coordinator *Coordinator
	collector   *evidence.Collector
	providers   *evidence.Registry
	log         *slog.Logger
}

// Options overrides selected collaborators, used by tests and the e2e
// harness. Zero fields fall back to the production wiring.
type Options struct {
	LLMClients *llm.Registry
	Quotes     QuoteService
	Providers  *evidence.Registry
}

// New wires the full pipeline from configuration.
func New(registry *config.Registry, settings *config.Settings, logger *slog.Logger, opts Options) *Engine {
	providers := opts.Providers
	var quotes QuoteService
	if providers == nil {
		providers = evidence.NewRegistry()
		quotes = evidence.RegisterDefaults(providers, settings.Evidence.BaseURL)
	}
	if opts.Quotes != nil {
		quotes = opts.Quotes
	}

	clients := opts.LLMClients
	if clients == nil {
		clients = llm.NewRegistry(settings, registry.ProviderKeys(), logger)
	}

	collector := evidence.NewCollector(providers, settings.Timeouts.Evidence, logger)
	gov := governor.New(settings.Governor, logger)
	runner := agent.NewRunner(gov, collector, clients, settings.Timeouts, settings.Retry, logger)
	scheduler := NewScheduler(runner, settings.Scheduler, logger)
	coordinator := NewCoordinator(scheduler, quotes, settings.Timeouts.Quote, logger)

	return &Engine{
		registry:    registry,
		settings:    settings,
		coordinator: coordinator,
		collector:   collector,
		providers:   providers,
		log:         logger.With("component", "engine"),
	}
}

// AnalyzeRequest is one analysis submission.
type AnalyzeRequest struct {
	Symbol string

	// EnabledOverrides are per-request sparse patches on top of the
	// persisted overrides. They are not persisted.
	EnabledOverrides map[string]bool

	// OperatorInstructions maps agent id to a verbatim prompt addendum.
	OperatorInstructions map[string]string

	// Stages restricts the run; empty means all four.
	Stages []int
}

// Validate rejects malformed requests before a session is created.
func (r AnalyzeRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	for _, stage := range r.Stages {
		if stage < config.MinStage || stage > config.MaxStage {
			return fmt.Errorf("stage %d out of range %d..%d", stage, config.MinStage, config.MaxStage)
		}
	}
	return nil
}

// Analyze runs one session to completion, emitting progress into sink. It
// blocks until the terminal event has been emitted; callers wanting
// streaming run it on its own goroutine with an events.Stream as the sink.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest, session *models.Session, sink events.ProgressSink) error {
	if sink == nil {
		sink = events.NopSink{}
	}

	specs, err := e.enabledSpecs(req.EnabledOverrides)
	if err != nil {
		return err
	}

	e.log.Info("session starting",
		"session_id", session.ID,
		"symbol", req.Symbol,
		"agents", len(specs),
		"stages", req.Stages)

	e.coordinator.Run(ctx, RunInput{
		Session:              session,
		Specs:                specs,
		Stages:               req.Stages,
		OperatorInstructions: req.OperatorInstructions,
		Sink:                 sink,
	})

	e.collector.PurgeSession(session.ID)
	return nil
}

// NewSession validates the request and creates the session handle for it.
func (e *Engine) NewSession(req AnalyzeRequest) (*models.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// Surface configuration errors (unknown override ids, disabled core
	// agents) before a session exists.
	if _, err := e.enabledSpecs(req.EnabledOverrides); err != nil {
		return nil, err
	}
	return models.NewSession(uuid.NewString(), req.Symbol), nil
}

// Registry exposes the config registry for the API layer.
func (e *Engine) Registry() *config.Registry {
	return e.registry
}

// EvidenceProviders exposes the provider registry for the passthrough API.
func (e *Engine) EvidenceProviders() *evidence.Registry {
	return e.providers
}

// Settings exposes the loaded engine settings.
func (e *Engine) Settings() *config.Settings {
	return e.settings
}

// enabledSpecs merges the request's sparse overrides onto the persisted
// ones and resolves the enabled set under the active profile.
func (e *Engine) enabledSpecs(requestOverrides map[string]bool) ([]config.AgentSpec, error) {
	if len(requestOverrides) == 0 {
		return e.registry.Enabled()
	}
	for id := range requestOverrides {
		if _, err := e.registry.Get(id); err != nil {
			return nil, err
		}
	}
	merged := map[string]bool{}
	for id, enabled := range e.registry.State().Overrides {
		merged[id] = enabled
	}
	for id, enabled := range requestOverrides {
		merged[id] = enabled
	}
	return e.registry.EnabledFor("", merged)
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
