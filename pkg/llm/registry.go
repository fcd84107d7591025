package llm

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/models"
)

// Registry hands out one Client per configured provider. Credentials are
// resolved from the environment once at construction; a provider whose key
// is absent still gets a registry entry so agents bound to it fail fast
// with AuthMissing instead of an unknown-provider error.
type Registry struct {
	clients map[string]Client
	missing map[string]string // provider → env var that was empty
	log     *slog.Logger
}

// NewRegistry builds clients for every provider in settings. keyEnvs maps
// provider names to the environment variables holding their API keys
// (catalogue mapping); a provider's key_env setting overrides it.
func NewRegistry(settings *config.Settings, keyEnvs map[string]string, logger *slog.Logger) *Registry {
	log := logger.With("component", "llm.registry")
	r := &Registry{
		clients: make(map[string]Client, len(settings.Providers)),
		missing: map[string]string{},
		log:     log,
	}

	for provider, runtime := range settings.Providers {
		envVar := runtime.KeyEnv
		if envVar == "" {
			envVar = keyEnvs[provider]
		}
		apiKey := ""
		if envVar != "" {
			apiKey = os.Getenv(envVar)
		}
		if apiKey == "" {
			r.missing[provider] = envVar
			log.Warn("provider has no API key configured", "provider", provider, "key_env", envVar)
		}
		r.clients[provider] = NewHTTPClient(provider, runtime.BaseURL, apiKey, settings.Retry, config.DefaultMaxOutputTokens, logger)
	}
	return r
}

// ClientFor returns the client for the named provider. An unconfigured
// provider or a provider with no credentials yields a typed error so the
// caller can fail the agent without consuming any concurrency budget.
func (r *Registry) ClientFor(provider string) (Client, error) {
	client, ok := r.clients[provider]
	if !ok {
		return nil, &Error{
			Kind:    models.ErrorKindProviderRefused,
			Message: fmt.Sprintf("provider %q is not configured", provider),
		}
	}
	if envVar, unauthenticated := r.missing[provider]; unauthenticated {
		return nil, &Error{
			Kind:    models.ErrorKindAuthMissing,
			Message: fmt.Sprintf("provider %q has no API key (set %s)", provider, envVar),
		}
	}
	return client, nil
}

// Authenticated reports whether the provider has credentials.
func (r *Registry) Authenticated(provider string) bool {
	_, ok := r.clients[provider]
	if !ok {
		return false
	}
	_, unauthenticated := r.missing[provider]
	return !unauthenticated
}

// Register installs or replaces a client. Tests use this to point a
// provider at a stub without touching the environment.
func (r *Registry) Register(client Client) {
	r.clients[client.Provider()] = client
	delete(r.missing, client.Provider())
}
