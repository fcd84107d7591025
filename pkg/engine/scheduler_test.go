package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickermind/tickermind/pkg/agent"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/evidence"
	"github.com/tickermind/tickermind/pkg/governor"
	"github.com/tickermind/tickermind/pkg/llm"
	"github.com/tickermind/tickermind/pkg/models"
)

// concurrencyClient counts in-flight completions.
type concurrencyClient struct {
	provider string
	delay    time.Duration
	inAir    atomic.Int32
	maxAir   atomic.Int32

	mu       sync.Mutex
	requests []llm.Request
}

func (c *concurrencyClient) Provider() string { return c.provider }

func (c *concurrencyClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	cur := c.inAir.Add(1)
	defer c.inAir.Add(-1)
	for {
		old := c.maxAir.Load()
		if cur <= old || c.maxAir.CompareAndSwap(old, cur) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, &llm.Error{Kind: models.ErrorKindCancelled, Message: "cancelled"}
		}
	}
	return &llm.Response{Content: "out", ProviderCode: "stop"}, nil
}

type schedulerFixture struct {
	scheduler *Scheduler
	client    *concurrencyClient
	session   *models.Session
	sink      *events.Stream
}

func newSchedulerFixture(t *testing.T, batches [4]int, governorSlots int, delay time.Duration) *schedulerFixture {
	t.Helper()
	t.Setenv("SCHED_TEST_KEY", "key")

	settings := config.DefaultSettings()
	settings.Providers = map[string]config.ProviderRuntime{
		config.ProviderDeepSeek: {BaseURL: "http://example.invalid", KeyEnv: "SCHED_TEST_KEY"},
	}
	clients := llm.NewRegistry(settings, nil, testLogger())
	client := &concurrencyClient{provider: config.ProviderDeepSeek, delay: delay}
	clients.Register(client)

	gov := governor.New(config.GovernorSettings{GlobalSlots: governorSlots}, testLogger())
	collector := evidence.NewCollector(evidence.NewRegistry(), 50*time.Millisecond, testLogger())
	timeouts := config.TimeoutSettings{
		Evidence: 50 * time.Millisecond,
		LLMCall:  5 * time.Second,
		Agent:    10 * time.Second,
	}
	retry := config.RetrySettings{BackoffBase: time.Millisecond, BackoffCap: time.Millisecond, AgentAttempts: 1}

	runner := agent.NewRunner(gov, collector, clients, timeouts, retry, testLogger())
	return &schedulerFixture{
		scheduler: NewScheduler(runner, config.SchedulerSettings{StageBatchSizes: batches}, testLogger()),
		client:    client,
		session:   models.NewSession("sched-test", "600519"),
		sink:      events.NewStream(1024),
	}
}

func stageSpec(id string, stage int, deps ...string) config.AgentSpec {
	return config.AgentSpec{
		ID:            id,
		Role:          "Role " + id,
		Stage:         stage,
		Binding:       config.ProviderBinding{Provider: config.ProviderDeepSeek, Model: "m", Temperature: 0},
		SystemPrompt:  "system " + id,
		Priority:      config.PriorityImportant,
		Dependencies:  deps,
		TaskDirective: "go",
		Enabled:       true,
	}
}

func TestSchedulerBatchBoundsParallelism(t *testing.T) {
	f := newSchedulerFixture(t, [4]int{4, 2, 2, 1}, 16, 20*time.Millisecond)

	specs := []config.AgentSpec{
		stageSpec("a", 3), stageSpec("b", 3), stageSpec("c", 3),
		stageSpec("d", 3), stageSpec("e", 3), stageSpec("f", 3),
	}

	start := time.Now()
	f.scheduler.Run(context.Background(), RunInput{
		Session: f.session,
		Stock:   testStock(),
		Specs:   specs,
		Sink:    f.sink,
	})
	elapsed := time.Since(start)

	assert.LessOrEqual(t, f.client.maxAir.Load(), int32(2), "stage-3 batch cap is 2")
	// 6 agents in batches of 2 at ~20ms each: three sequential batches.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)

	for _, rec := range f.session.Records() {
		assert.Equal(t, models.AgentStatusCompleted, rec.Status)
	}
}

func TestSchedulerBatchSizeOneIsSequential(t *testing.T) {
	f := newSchedulerFixture(t, [4]int{1, 1, 1, 1}, 16, 5*time.Millisecond)

	specs := []config.AgentSpec{
		stageSpec("a", 1), stageSpec("b", 1), stageSpec("c", 1),
	}
	f.scheduler.Run(context.Background(), RunInput{
		Session: f.session,
		Stock:   testStock(),
		Specs:   specs,
		Sink:    f.sink,
	})

	assert.Equal(t, int32(1), f.client.maxAir.Load(), "batch size 1 reduces to sequential execution")
}

func TestSchedulerGovernorSerialisesAcrossBatches(t *testing.T) {
	f := newSchedulerFixture(t, [4]int{4, 2, 2, 1}, 1, 5*time.Millisecond)

	specs := []config.AgentSpec{
		stageSpec("a", 1), stageSpec("b", 1), stageSpec("c", 1), stageSpec("d", 1),
	}
	f.scheduler.Run(context.Background(), RunInput{
		Session: f.session,
		Stock:   testStock(),
		Specs:   specs,
		Sink:    f.sink,
	})

	assert.Equal(t, int32(1), f.client.maxAir.Load(), "a single governor slot serialises all LLM calls")
}

func TestSchedulerNoSiblingInPriors(t *testing.T) {
	f := newSchedulerFixture(t, [4]int{4, 2, 2, 1}, 8, 0)

	specs := []config.AgentSpec{
		stageSpec("up", 1),
		stageSpec("left", 2, "up"),
		stageSpec("right", 2, "up"),
	}
	f.scheduler.Run(context.Background(), RunInput{
		Session: f.session,
		Stock:   testStock(),
		Specs:   specs,
		Sink:    f.sink,
	})

	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	for _, req := range f.client.requests {
		if req.SystemPrompt == "system left" || req.SystemPrompt == "system right" {
			assert.Contains(t, req.UserPrompt, "### Role up")
			assert.NotContains(t, req.UserPrompt, "Role left")
			assert.NotContains(t, req.UserPrompt, "Role right")
		}
	}
}

func TestSchedulerDisabledUpstreamsYieldNoPriorBlock(t *testing.T) {
	f := newSchedulerFixture(t, [4]int{4, 2, 2, 1}, 8, 0)

	// The stage-3 agent's declared upstreams are absent from the enabled
	// set; it must still run, with no prior-outputs block at all.
	specs := []config.AgentSpec{
		stageSpec("solo", 3, "ghost1", "ghost2"),
	}
	f.scheduler.Run(context.Background(), RunInput{
		Session: f.session,
		Stock:   testStock(),
		Specs:   specs,
		Sink:    f.sink,
	})

	rec := f.session.Record("solo")
	require.NotNil(t, rec)
	assert.Equal(t, models.AgentStatusCompleted, rec.Status)

	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	require.Len(t, f.client.requests, 1)
	assert.NotContains(t, f.client.requests[0].UserPrompt, "## Prior Analysis")
}

func TestSchedulerEmitsNoEventsForEmptyStages(t *testing.T) {
	f := newSchedulerFixture(t, [4]int{4, 2, 2, 1}, 8, 0)

	f.scheduler.Run(context.Background(), RunInput{
		Session: f.session,
		Stock:   testStock(),
		Specs:   []config.AgentSpec{stageSpec("only", 2)},
		Sink:    f.sink,
	})
	f.sink.Close()

	ctx := context.Background()
	for {
		ev, err := f.sink.Next(ctx)
		if err != nil {
			break
		}
		if ev.Type == events.EventTypeStageStarted || ev.Type == events.EventTypeStageCompleted {
			assert.Equal(t, 2, ev.Stage, "stages without agents emit no boundary events")
		}
	}
}

func TestSchedulerDeterministicPrompts(t *testing.T) {
	prompts := func() []string {
		f := newSchedulerFixture(t, [4]int{4, 2, 2, 1}, 8, 0)
		specs := []config.AgentSpec{
			stageSpec("a", 1), stageSpec("b", 2, "a"),
		}
		f.scheduler.Run(context.Background(), RunInput{
			Session: f.session,
			Stock:   testStock(),
			Specs:   specs,
			Sink:    f.sink,
		})
		f.client.mu.Lock()
		defer f.client.mu.Unlock()
		out := make([]string, 0, len(f.client.requests))
		for _, req := range f.client.requests {
			out = append(out, req.SystemPrompt+"\x00"+req.UserPrompt)
		}
		return out
	}

	assert.Equal(t, prompts(), prompts(), "identical inputs must produce byte-identical prompts")
}
