package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/models"
)

// QuoteService resolves the stock context a session is rooted in.
type QuoteService interface {
	Snapshot(ctx context.Context, symbol string) (*models.StockContext, error)
}

// Coordinator runs one session end to end: bootstrap the stock context,
// hand the enabled set to the scheduler, then derive the aggregate status
// and emit the terminal event. The terminal event is always emitted, even
// when the session aborts before any agent runs.
type Coordinator struct {
	scheduler    *Scheduler
	quotes       QuoteService
	quoteTimeout time.Duration
	log          *slog.Logger
}

// NewCoordinator wires a coordinator.
func NewCoordinator(scheduler *Scheduler, quotes QuoteService, quoteTimeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		scheduler:    scheduler,
		quotes:       quotes,
		quoteTimeout: quoteTimeout,
		log:          logger.With("component", "engine.coordinator"),
	}
}

// Run drives the session to its terminal state. It blocks until every
// scheduled agent has terminated and the session.completed event is
// emitted.
func (c *Coordinator) Run(ctx context.Context, in RunInput) {
	session := in.Session
	log := c.log.With("session_id", session.ID, "symbol", session.Symbol)

	// 1. Resolve the stock context. Without it no LLM call is made.
	quoteCtx, cancel := context.WithTimeout(ctx, c.quoteTimeout)
	stock, err := c.quotes.Snapshot(quoteCtx, session.Symbol)
	cancel()
	if err != nil {
		log.Warn("no stock data, aborting session", "error", err)
		session.End(models.SessionStatusError)
		c.emitTerminal(in, models.ErrorKindNoStockData, err.Error())
		return
	}
	session.SetStock(stock)
	in.Stock = stock

	// 2. Run the stages.
	c.scheduler.Run(ctx, in)

	// 3. Derive and record the aggregate status. A cancelled context wins
	// over whatever the records say.
	status := aggregateStatus(ctx, in.Specs, session)
	session.End(status)
	log.Info("session finished", "status", status)

	c.emitTerminal(in, "", "")
}

// emitTerminal publishes the session.completed event with the full
// aggregate snapshot.
func (c *Coordinator) emitTerminal(in RunInput, kind models.ErrorKind, message string) {
	in.Sink.Emit(events.Event{
		Type:          events.EventTypeSessionCompleted,
		SessionID:     in.Session.ID,
		Timestamp:     events.Now(),
		SessionStatus: in.Session.Status(),
		ErrorKind:     kind,
		ErrorMessage:  message,
		Aggregate:     in.Session.Snapshot(),
	})
}

// aggregateStatus folds the agent records into the session outcome:
// success when every scheduled agent completed, partial when all core
// agents completed but a non-core one did not, error otherwise. A
// cancelled run is always cancelled regardless of per-agent outcomes.
func aggregateStatus(ctx context.Context, specs []config.AgentSpec, session *models.Session) models.SessionStatus {
	if ctx.Err() != nil {
		return models.SessionStatusCancelled
	}

	coreByID := make(map[string]bool, len(specs))
	for _, spec := range specs {
		coreByID[spec.ID] = spec.Core()
	}

	allCompleted := true
	coreCompleted := true
	for _, rec := range session.Records() {
		if rec.Status == models.AgentStatusCancelled {
			return models.SessionStatusCancelled
		}
		if rec.Status != models.AgentStatusCompleted {
			allCompleted = false
			if coreByID[rec.AgentID] {
				coreCompleted = false
			}
		}
	}

	switch {
	case allCompleted:
		return models.SessionStatusSuccess
	case coreCompleted:
		return models.SessionStatusPartial
	default:
		return models.SessionStatusError
	}
}
