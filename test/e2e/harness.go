// Package e2e boots the full service against mock provider and market
// endpoints and drives it through the public HTTP API. Only the outermost
// URLs are faked; the engine, LLM transport, evidence providers, session
// manager, and API all run production code.
package e2e

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tickermind/tickermind/pkg/api"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/engine"
	"github.com/tickermind/tickermind/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestApp is the booted service under test.
type TestApp struct {
	URL      string
	LLM      *ScriptedLLM
	Manager  *session.Manager
	Registry *config.Registry
}

// Option mutates the settings before the app boots.
type Option func(*config.Settings)

// NewTestApp starts the full stack and returns its public URL.
func NewTestApp(t *testing.T, llm *ScriptedLLM, opts ...Option) *TestApp {
	t.Helper()
	t.Setenv("DEEPSEEK_API_KEY", "e2e-key")
	t.Cleanup(llm.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	market := NewMockMarket(t)

	registry, err := config.NewRegistry(t.TempDir(), logger)
	require.NoError(t, err)

	settings := config.DefaultSettings()
	settings.Providers = map[string]config.ProviderRuntime{
		config.ProviderDeepSeek: {BaseURL: llm.URL(), KeyEnv: "DEEPSEEK_API_KEY"},
	}
	settings.Evidence.BaseURL = market.URL
	settings.Catalog.DatabaseURL = ""
	settings.Timeouts.Evidence = 2 * time.Second
	settings.Timeouts.Quote = 2 * time.Second
	settings.Timeouts.LLMCall = 5 * time.Second
	settings.Timeouts.Agent = 20 * time.Second
	settings.Retry.BackoffBase = 10 * time.Millisecond
	settings.Retry.BackoffCap = 40 * time.Millisecond
	for _, opt := range opts {
		opt(settings)
	}

	eng := engine.New(registry, settings, logger, engine.Options{})
	manager := session.NewManager(eng, settings.Sessions, settings.Server.StreamCapacity, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.Stop(ctx)
	})

	server := api.NewServer(eng, manager, nil, logger)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &TestApp{
		URL:      ts.URL,
		LLM:      llm,
		Manager:  manager,
		Registry: registry,
	}
}
