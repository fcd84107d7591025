package evidence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/models"
)

// unavailableNote marks a source whose provider failed or timed out.
const unavailableNote = "unavailable"

// Collector resolves an agent's evidence bindings against the provider
// registry, fanning out one goroutine per binding under a per-provider
// deadline. The returned bundle preserves binding order; a failed provider
// yields a zero-count source instead of an error.
type Collector struct {
	registry *Registry
	timeout  time.Duration
	log      *slog.Logger

	// inflight serialises fetches per (session, agent, provider key) so a
	// retried or racing caller cannot double-invoke the same provider.
	inflight sync.Map // string → *sync.Mutex
}

// NewCollector creates a collector with the given per-provider deadline.
func NewCollector(registry *Registry, timeout time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		registry: registry,
		timeout:  timeout,
		log:      logger.With("component", "evidence.collector"),
	}
}

// Collect gathers all bound sources for one agent. It never returns an
// error: each binding resolves to either real evidence or an unavailable
// marker, and an empty binding list yields an empty bundle.
func (c *Collector) Collect(ctx context.Context, sessionID, agentID, symbol string, bindings []config.EvidenceBinding) *models.EvidenceBundle {
	bundle := &models.EvidenceBundle{Sources: make([]models.EvidenceSource, len(bindings))}
	if len(bindings) == 0 {
		return bundle
	}

	var g errgroup.Group
	for i, binding := range bindings {
		g.Go(func() error {
			bundle.Sources[i] = c.fetchOne(ctx, sessionID, agentID, symbol, binding)
			return nil
		})
	}
	// Fetch failures degrade to unavailable markers inside fetchOne, so the
	// group never carries an error.
	_ = g.Wait()
	return bundle
}

// PurgeSession drops the in-flight guards of a finished session.
func (c *Collector) PurgeSession(sessionID string) {
	c.inflight.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), sessionID+"/") {
			c.inflight.Delete(k)
		}
		return true
	})
}

func (c *Collector) fetchOne(ctx context.Context, sessionID, agentID, symbol string, binding config.EvidenceBinding) models.EvidenceSource {
	fallback := models.EvidenceSource{
		Key:   binding.Key,
		Label: binding.Label,
		Note:  unavailableNote,
	}

	provider, err := c.registry.Get(binding.Key)
	if err != nil {
		c.log.Warn("evidence binding references unknown provider",
			"session_id", sessionID, "agent_id", agentID, "key", binding.Key)
		return fallback
	}
	if fallback.Label == "" {
		fallback.Label = provider.Label()
	}

	// At most one concurrent invocation per (session, agent, key).
	muAny, _ := c.inflight.LoadOrStore(sessionID+"/"+agentID+"/"+binding.Key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	source, err := provider.Fetch(fetchCtx, symbol)
	if err != nil {
		c.log.Warn("evidence fetch failed",
			"session_id", sessionID,
			"agent_id", agentID,
			"key", binding.Key,
			"symbol", symbol,
			"elapsed", time.Since(start),
			"error", err)
		return fallback
	}

	source.Key = binding.Key
	if binding.Label != "" {
		source.Label = binding.Label
	}
	return source
}
