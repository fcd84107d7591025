package governor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickermind/tickermind/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGovernorGlobalBudget(t *testing.T) {
	g := New(config.GovernorSettings{GlobalSlots: 2}, testLogger())

	release1, err := g.Acquire(context.Background(), "deepseek")
	require.NoError(t, err)
	release2, err := g.Acquire(context.Background(), "openai")
	require.NoError(t, err)

	// Third acquire must block until a token comes back.
	_, ok := g.TryAcquire("deepseek")
	assert.False(t, ok)

	release1()
	release3, ok := g.TryAcquire("deepseek")
	require.True(t, ok)

	release2()
	release3()
}

func TestGovernorPerProviderBudget(t *testing.T) {
	g := New(config.GovernorSettings{
		GlobalSlots:   4,
		ProviderSlots: map[string]int{"deepseek": 1},
	}, testLogger())

	release1, err := g.Acquire(context.Background(), "deepseek")
	require.NoError(t, err)

	// deepseek is saturated but the global pool is not: other providers
	// still get through.
	_, ok := g.TryAcquire("deepseek")
	assert.False(t, ok)
	release2, ok := g.TryAcquire("openai")
	require.True(t, ok)

	release1()
	release2()
}

func TestGovernorAcquireRespectsContext(t *testing.T) {
	g := New(config.GovernorSettings{GlobalSlots: 1}, testLogger())

	release, err := g.Acquire(context.Background(), "deepseek")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = g.Acquire(ctx, "deepseek")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGovernorFailedAcquireReturnsGlobalToken(t *testing.T) {
	g := New(config.GovernorSettings{
		GlobalSlots:   2,
		ProviderSlots: map[string]int{"deepseek": 1},
	}, testLogger())

	release1, err := g.Acquire(context.Background(), "deepseek")
	require.NoError(t, err)

	// A failed provider acquire must give back its global token.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, "deepseek")
	require.Error(t, err)

	// Both remaining global slots are still usable.
	releaseA, ok := g.TryAcquire("openai")
	require.True(t, ok)
	releaseB, ok := g.TryAcquire("openai")
	require.True(t, ok)

	release1()
	releaseA()
	releaseB()
}

func TestGovernorReleaseIsIdempotent(t *testing.T) {
	g := New(config.GovernorSettings{GlobalSlots: 1}, testLogger())

	release, err := g.Acquire(context.Background(), "deepseek")
	require.NoError(t, err)
	release()
	release() // second call is a no-op, not a double release

	release2, ok := g.TryAcquire("deepseek")
	require.True(t, ok)
	release2()
	_, ok = g.TryAcquire("deepseek")
	assert.True(t, ok, "budget must not grow past its configured size")
}

func TestGovernorSerialisesUnderContention(t *testing.T) {
	g := New(config.GovernorSettings{GlobalSlots: 1}, testLogger())

	var inFlight atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), "deepseek")
			require.NoError(t, err)
			defer release()

			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load(), "a single slot must serialise all calls")
}
