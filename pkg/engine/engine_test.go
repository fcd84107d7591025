package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/llm"
	"github.com/tickermind/tickermind/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// behaviourClient routes each completion through a test-provided function.
type behaviourClient struct {
	provider  string
	behaviour func(ctx context.Context, req llm.Request) (*llm.Response, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (c *behaviourClient) Provider() string { return c.provider }

func (c *behaviourClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.behaviour != nil {
		return c.behaviour(ctx, req)
	}
	return &llm.Response{Content: "analysis", ProviderCode: "stop"}, nil
}

func (c *behaviourClient) requestBySystemPrompt(fragment string) (llm.Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.requests {
		if strings.Contains(req.SystemPrompt, fragment) {
			return req, true
		}
	}
	return llm.Request{}, false
}

// staticQuotes serves a fixed stock context, or an error.
type staticQuotes struct {
	stock *models.StockContext
	err   error
	delay time.Duration
}

func (q *staticQuotes) Snapshot(ctx context.Context, symbol string) (*models.StockContext, error) {
	if q.delay > 0 {
		select {
		case <-time.After(q.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if q.err != nil {
		return nil, q.err
	}
	stock := *q.stock
	stock.Symbol = symbol
	return &stock, nil
}

func testStock() *models.StockContext {
	return &models.StockContext{
		Symbol: "600519",
		Name:   "贵州茅台",
		Quote:  models.Quote{Price: "1700.12", Change: "12.00", ChangePct: "0.71%"},
	}
}

type engineFixture struct {
	engine *Engine
	client *behaviourClient
	quotes *staticQuotes
}

func newEngineFixture(t *testing.T, behaviour func(ctx context.Context, req llm.Request) (*llm.Response, error)) *engineFixture {
	t.Helper()
	t.Setenv("ENGINE_TEST_KEY", "key")

	registry, err := config.NewRegistry(t.TempDir(), testLogger())
	require.NoError(t, err)

	settings := config.DefaultSettings()
	settings.Providers = map[string]config.ProviderRuntime{
		config.ProviderDeepSeek: {BaseURL: "http://example.invalid", KeyEnv: "ENGINE_TEST_KEY"},
	}
	settings.Timeouts = config.TimeoutSettings{
		Evidence: 50 * time.Millisecond,
		Quote:    100 * time.Millisecond,
		LLMCall:  500 * time.Millisecond,
		Agent:    2 * time.Second,
	}
	settings.Retry.BackoffBase = time.Millisecond
	settings.Retry.BackoffCap = time.Millisecond

	clients := llm.NewRegistry(settings, nil, testLogger())
	client := &behaviourClient{provider: config.ProviderDeepSeek, behaviour: behaviour}
	clients.Register(client)

	quotes := &staticQuotes{stock: testStock()}

	eng := New(registry, settings, testLogger(), Options{
		LLMClients: clients,
		Quotes:     quotes,
	})
	return &engineFixture{engine: eng, client: client, quotes: quotes}
}

// runAnalyze drives one session synchronously and drains the stream.
func runAnalyze(t *testing.T, f *engineFixture, ctx context.Context, req AnalyzeRequest) (*models.Session, []events.Event) {
	t.Helper()

	session, err := f.engine.NewSession(req)
	require.NoError(t, err)

	stream := events.NewStream(1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.engine.Analyze(ctx, req, session, stream)
	}()

	var got []events.Event
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		ev, err := stream.Next(drainCtx)
		if err != nil {
			break
		}
		got = append(got, ev)
		if ev.Terminal() {
			break
		}
	}
	<-done
	return session, got
}

func eventTypes(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestEngineHappyPath(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, evs := runAnalyze(t, f, context.Background(), AnalyzeRequest{Symbol: "600519"})

	assert.Equal(t, models.SessionStatusSuccess, session.Status())

	// Stage boundaries arrive in order 1..4.
	var stages []string
	completedAgents := 0
	for _, ev := range evs {
		switch ev.Type {
		case events.EventTypeStageStarted:
			stages = append(stages, fmt.Sprintf("start:%d", ev.Stage))
		case events.EventTypeStageCompleted:
			stages = append(stages, fmt.Sprintf("done:%d", ev.Stage))
		case events.EventTypeAgentCompleted:
			completedAgents++
		}
	}
	assert.Equal(t, []string{
		"start:1", "done:1",
		"start:2", "done:2",
		"start:3", "done:3",
		"start:4", "done:4",
	}, stages)
	assert.Equal(t, 10, completedAgents, "exactly one completed event per enabled agent")

	final := evs[len(evs)-1]
	assert.Equal(t, events.EventTypeSessionCompleted, final.Type)
	assert.Equal(t, models.SessionStatusSuccess, final.SessionStatus)
	require.NotNil(t, final.Aggregate)
	assert.Len(t, final.Aggregate.Records, 10)

	for _, rec := range session.Records() {
		assert.Equal(t, models.AgentStatusCompleted, rec.Status, "agent %s", rec.AgentID)
	}
}

func TestEnginePriorOutputsFlowDownstream(t *testing.T) {
	f := newEngineFixture(t, func(_ context.Context, req llm.Request) (*llm.Response, error) {
		// Tag each output with its system prompt's opening words so
		// downstream prompts are attributable.
		head := req.SystemPrompt
		if len(head) > 40 {
			head = head[:40]
		}
		return &llm.Response{Content: "OUTPUT[" + head + "]", ProviderCode: "stop"}, nil
	})

	_, evs := runAnalyze(t, f, context.Background(), AnalyzeRequest{Symbol: "600519"})
	require.NotEmpty(t, evs)

	// The integrator (stage 2) must have seen stage-1 outputs.
	integratorReq, ok := f.client.requestBySystemPrompt("integration analyst")
	require.True(t, ok)
	assert.Contains(t, integratorReq.UserPrompt, "## Prior Analysis")
	assert.Contains(t, integratorReq.UserPrompt, "### Technical Analyst")
	assert.Contains(t, integratorReq.UserPrompt, "OUTPUT[")

	// The decision maker (stage 4) must have seen the risk report but no
	// stage-4 sibling.
	decisionReq, ok := f.client.requestBySystemPrompt("chief decision maker")
	require.True(t, ok)
	assert.Contains(t, decisionReq.UserPrompt, "### Risk Manager")
	assert.Contains(t, decisionReq.UserPrompt, "### Bull Researcher")
	assert.NotContains(t, decisionReq.UserPrompt, "### Chief Decision Maker")
}

func TestEngineNonCoreFailureYieldsPartial(t *testing.T) {
	f := newEngineFixture(t, func(_ context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.SystemPrompt, "news analyst") {
			return nil, &llm.Error{Kind: models.ErrorKindProviderRefused, ProviderCode: "400", Message: "refused"}
		}
		return &llm.Response{Content: "ok", ProviderCode: "stop"}, nil
	})

	session, evs := runAnalyze(t, f, context.Background(), AnalyzeRequest{Symbol: "600519"})

	assert.Equal(t, models.SessionStatusPartial, session.Status())

	news := session.Record("news")
	require.NotNil(t, news)
	assert.Equal(t, models.AgentStatusFailed, news.Status)
	assert.Equal(t, models.ErrorKindProviderRefused, news.ErrorKind)
	assert.Equal(t, "400", news.ProviderCode)

	// Downstream integrator still ran and saw the unavailable marker.
	integratorReq, ok := f.client.requestBySystemPrompt("integration analyst")
	require.True(t, ok)
	assert.Contains(t, integratorReq.UserPrompt, "### News Analyst\n(upstream unavailable)")

	final := evs[len(evs)-1]
	assert.Equal(t, models.SessionStatusPartial, final.SessionStatus)
}

func TestEngineCoreFailureYieldsError(t *testing.T) {
	f := newEngineFixture(t, func(_ context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.SystemPrompt, "integration analyst") {
			return nil, &llm.Error{Kind: models.ErrorKindProviderRefused, Message: "refused"}
		}
		return &llm.Response{Content: "ok", ProviderCode: "stop"}, nil
	})

	session, _ := runAnalyze(t, f, context.Background(), AnalyzeRequest{Symbol: "600519"})
	assert.Equal(t, models.SessionStatusError, session.Status())
}

func TestEngineNoStockData(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.quotes.err = fmt.Errorf("no quote data for symbol 999999")

	session, evs := runAnalyze(t, f, context.Background(), AnalyzeRequest{Symbol: "999999"})

	assert.Equal(t, models.SessionStatusError, session.Status())
	require.NotEmpty(t, evs)

	final := evs[len(evs)-1]
	assert.Equal(t, events.EventTypeSessionCompleted, final.Type)
	assert.Equal(t, models.ErrorKindNoStockData, final.ErrorKind)
	assert.Empty(t, session.Records(), "no agent runs before the stock context resolves")
	assert.Empty(t, f.client.requests, "no LLM call without stock data")
}

func TestEngineCancellation(t *testing.T) {
	started := make(chan struct{}, 16)
	f := newEngineFixture(t, func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return nil, &llm.Error{Kind: models.ErrorKindCancelled, Message: "cancelled"}
		case <-time.After(5 * time.Second):
			return &llm.Response{Content: "too late", ProviderCode: "stop"}, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Cancel once the first stage-1 batch is in flight.
		<-started
		cancel()
	}()

	session, evs := runAnalyze(t, f, ctx, AnalyzeRequest{Symbol: "600519"})

	assert.Equal(t, models.SessionStatusCancelled, session.Status())

	final := evs[len(evs)-1]
	assert.Equal(t, events.EventTypeSessionCompleted, final.Type)
	assert.Equal(t, models.SessionStatusCancelled, final.SessionStatus)

	// No agent reports success after the cancel reached it.
	for _, rec := range session.Records() {
		assert.NotEqual(t, models.AgentStatusCompleted, rec.Status, "agent %s", rec.AgentID)
	}
}

func TestEngineStageSubset(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, evs := runAnalyze(t, f, context.Background(), AnalyzeRequest{
		Symbol: "600519",
		Stages: []int{1},
	})

	assert.Equal(t, models.SessionStatusSuccess, session.Status())
	assert.Len(t, session.Records(), 5, "only stage-1 agents are scheduled")

	for _, ev := range evs {
		if ev.Type == events.EventTypeStageStarted {
			assert.Equal(t, 1, ev.Stage)
		}
	}
}

func TestEngineRequestOverrides(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, _ := runAnalyze(t, f, context.Background(), AnalyzeRequest{
		Symbol:           "600519",
		EnabledOverrides: map[string]bool{"sector": false, "macro": false},
	})

	assert.Len(t, session.Records(), 8)
	assert.Nil(t, session.Record("sector"))
	assert.Nil(t, session.Record("macro"))
}

func TestEngineRejectsBadRequests(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := f.engine.NewSession(AnalyzeRequest{})
	assert.Error(t, err, "symbol is required")

	_, err = f.engine.NewSession(AnalyzeRequest{Symbol: "600519", Stages: []int{7}})
	assert.Error(t, err)

	_, err = f.engine.NewSession(AnalyzeRequest{
		Symbol:           "600519",
		EnabledOverrides: map[string]bool{"ghost": true},
	})
	assert.ErrorIs(t, err, config.ErrAgentNotFound)

	_, err = f.engine.NewSession(AnalyzeRequest{
		Symbol:           "600519",
		EnabledOverrides: map[string]bool{"decision": false},
	})
	assert.ErrorIs(t, err, config.ErrInvariantViolation)
}

func TestEngineOperatorInstructionReachesPrompt(t *testing.T) {
	f := newEngineFixture(t, nil)
	_, _ = runAnalyze(t, f, context.Background(), AnalyzeRequest{
		Symbol: "600519",
		Stages: []int{1},
		OperatorInstructions: map[string]string{
			"technical": "Focus on the 20-day moving average.",
		},
	})

	techReq, ok := f.client.requestBySystemPrompt("technical analyst")
	require.True(t, ok)
	assert.Contains(t, techReq.UserPrompt, "## Operator Instruction")
	assert.Contains(t, techReq.UserPrompt, "Focus on the 20-day moving average.")
}
