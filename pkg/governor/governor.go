// Package governor bounds in-flight LLM calls with a global budget and a
// per-provider budget. An agent must hold one token from each before it
// dials a provider; releasing returns both.
package governor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tickermind/tickermind/pkg/config"
)

// Governor is the two-level concurrency budget. Provider semaphores are
// created lazily so catalogue edits that add providers need no restart.
type Governor struct {
	global *semaphore.Weighted

	mu        sync.Mutex
	providers map[string]*semaphore.Weighted

	settings config.GovernorSettings
	log      *slog.Logger
}

// New creates a governor from settings. GlobalSlots must be validated
// positive by the settings loader.
func New(settings config.GovernorSettings, logger *slog.Logger) *Governor {
	return &Governor{
		global:    semaphore.NewWeighted(int64(settings.GlobalSlots)),
		providers: map[string]*semaphore.Weighted{},
		settings:  settings,
		log:       logger.With("component", "governor"),
	}
}

// Acquire blocks until one global and one provider token are available, or
// the context ends. On success the returned release function must be called
// exactly once; it never blocks.
func (g *Governor) Acquire(ctx context.Context, provider string) (func(), error) {
	// Global first, provider second, released in reverse. A fixed order on
	// both paths keeps two agents on different providers from deadlocking.
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	sem := g.providerSem(provider)
	if err := sem.Acquire(ctx, 1); err != nil {
		g.global.Release(1)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sem.Release(1)
			g.global.Release(1)
		})
	}, nil
}

// TryAcquire is the non-blocking variant. It returns false without taking
// any token when either budget is exhausted.
func (g *Governor) TryAcquire(provider string) (func(), bool) {
	if !g.global.TryAcquire(1) {
		return nil, false
	}
	sem := g.providerSem(provider)
	if !sem.TryAcquire(1) {
		g.global.Release(1)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sem.Release(1)
			g.global.Release(1)
		})
	}, true
}

func (g *Governor) providerSem(provider string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()

	sem, ok := g.providers[provider]
	if !ok {
		slots := g.settings.GlobalSlots
		if n, configured := g.settings.ProviderSlots[provider]; configured {
			slots = n
		}
		sem = semaphore.NewWeighted(int64(slots))
		g.providers[provider] = sem
		g.log.Debug("provider budget created", "provider", provider, "slots", slots)
	}
	return sem
}
