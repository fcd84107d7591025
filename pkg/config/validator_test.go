package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpecs() []AgentSpec {
	return []AgentSpec{
		{
			ID:       "alpha",
			Role:     "Alpha",
			Stage:    1,
			Binding:  ProviderBinding{Provider: ProviderDeepSeek, Model: "deepseek-chat", Temperature: 0.3},
			Priority: PriorityCore,
			Enabled:  true,
		},
		{
			ID:           "beta",
			Role:         "Beta",
			Stage:        2,
			Binding:      ProviderBinding{Provider: ProviderDeepSeek, Model: "deepseek-chat", Temperature: 0.5},
			Priority:     PriorityImportant,
			Dependencies: []string{"alpha"},
			Enabled:      true,
		},
	}
}

func TestCatalogueValidator(t *testing.T) {
	providers := builtinProviderKeys()

	tests := []struct {
		name    string
		mutate  func(specs []AgentSpec) []AgentSpec
		wantErr string
	}{
		{
			name:   "valid catalogue",
			mutate: func(specs []AgentSpec) []AgentSpec { return specs },
		},
		{
			name: "duplicate id",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[1].ID = "alpha"
				specs[1].Dependencies = nil
				return specs
			},
			wantErr: "duplicate agent id",
		},
		{
			name: "stage out of range",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[0].Stage = 5
				return specs
			},
			wantErr: "must be between 1 and 4",
		},
		{
			name: "negative temperature",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[0].Binding.Temperature = -0.1
				return specs
			},
			wantErr: "must not be negative",
		},
		{
			name: "unknown provider",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[0].Binding.Provider = "nonexistent"
				return specs
			},
			wantErr: "provider 'nonexistent' not found",
		},
		{
			name: "invalid priority",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[0].Priority = "critical"
				return specs
			},
			wantErr: "invalid priority",
		},
		{
			name: "unknown dependency",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[1].Dependencies = []string{"ghost"}
				return specs
			},
			wantErr: "dependency 'ghost' not found",
		},
		{
			name: "dependency in same stage",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[1].Stage = 1
				return specs
			},
			wantErr: "must be earlier than stage",
		},
		{
			name: "dependency in later stage",
			mutate: func(specs []AgentSpec) []AgentSpec {
				specs[0].Stage = 3
				return specs
			},
			wantErr: "must be earlier than stage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := tt.mutate(validSpecs())
			err := NewCatalogueValidator(specs, providers).ValidateAll()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected a ValidationError, got %T", err)
		})
	}
}

func TestBuiltinCatalogueIsValid(t *testing.T) {
	err := NewCatalogueValidator(builtinAgents(), builtinProviderKeys()).ValidateAll()
	require.NoError(t, err)
}

func TestBuiltinCatalogueShape(t *testing.T) {
	specs := builtinAgents()

	byStage := map[int]int{}
	core := 0
	for _, spec := range specs {
		byStage[spec.Stage]++
		if spec.Core() {
			core++
		}
		assert.True(t, spec.Enabled, "builtin agent %s must start enabled", spec.ID)
	}

	assert.Equal(t, 5, byStage[1])
	assert.Equal(t, 1, byStage[2])
	assert.Equal(t, 3, byStage[3])
	assert.Equal(t, 1, byStage[4])
	assert.Equal(t, 4, core, "technical, integrator, risk_manager, decision are core")
}
