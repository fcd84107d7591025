package config

import "fmt"

// CatalogueValidator validates an agent catalogue comprehensively with clear
// error messages.
type CatalogueValidator struct {
	specs     []AgentSpec
	providers map[string]string // provider name → credential env var
	byID      map[string]*AgentSpec
}

// NewCatalogueValidator creates a validator for the given specs and known
// provider set.
func NewCatalogueValidator(specs []AgentSpec, providers map[string]string) *CatalogueValidator {
	byID := make(map[string]*AgentSpec, len(specs))
	for i := range specs {
		byID[specs[i].ID] = &specs[i]
	}
	return &CatalogueValidator{specs: specs, providers: providers, byID: byID}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first
// error). Specs are validated before the dependency graph so graph errors
// never mask malformed specs.
func (v *CatalogueValidator) ValidateAll() error {
	if err := v.validateSpecs(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateDependencies(); err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}
	return nil
}

func (v *CatalogueValidator) validateSpecs() error {
	seen := make(map[string]bool, len(v.specs))
	for i := range v.specs {
		spec := &v.specs[i]

		if spec.ID == "" {
			return NewValidationError("agent", fmt.Sprintf("index %d", i), "id", fmt.Errorf("id is required"))
		}
		if seen[spec.ID] {
			return NewValidationError("agent", spec.ID, "id", fmt.Errorf("duplicate agent id"))
		}
		seen[spec.ID] = true

		if spec.Stage < MinStage || spec.Stage > MaxStage {
			return NewValidationError("agent", spec.ID, "stage", fmt.Errorf("must be between %d and %d, got %d", MinStage, MaxStage, spec.Stage))
		}
		if !spec.Priority.IsValid() {
			return NewValidationError("agent", spec.ID, "priority", fmt.Errorf("invalid priority: %s", spec.Priority))
		}
		if spec.Binding.Temperature < 0 {
			return NewValidationError("agent", spec.ID, "provider_binding.temperature", fmt.Errorf("must not be negative, got %g", spec.Binding.Temperature))
		}
		if spec.Binding.MaxOutputTokens < 0 {
			return NewValidationError("agent", spec.ID, "provider_binding.max_output_tokens", fmt.Errorf("must not be negative, got %d", spec.Binding.MaxOutputTokens))
		}
		if spec.Binding.Provider == "" {
			return NewValidationError("agent", spec.ID, "provider_binding.provider", fmt.Errorf("provider is required"))
		}
		if _, ok := v.providers[spec.Binding.Provider]; !ok {
			return NewValidationError("agent", spec.ID, "provider_binding.provider", fmt.Errorf("provider '%s' not found", spec.Binding.Provider))
		}
		if spec.Binding.Model == "" {
			return NewValidationError("agent", spec.ID, "provider_binding.model", fmt.Errorf("model is required"))
		}

		for j, binding := range spec.EvidenceBindings {
			if binding.Key == "" {
				return NewValidationError("agent", spec.ID, fmt.Sprintf("evidence_bindings[%d].key", j), fmt.Errorf("key is required"))
			}
		}
	}
	return nil
}

// validateDependencies checks that every dependency resolves to a known
// agent in a strictly earlier stage, then rejects cycles. The stage check
// already makes a cycle impossible within a valid catalogue, but the walk
// stays so a cycle in hand-edited stage values is reported as a cycle
// rather than as a cryptic stage error on an arbitrary member.
func (v *CatalogueValidator) validateDependencies() error {
	for i := range v.specs {
		spec := &v.specs[i]
		for _, dep := range spec.Dependencies {
			upstream, ok := v.byID[dep]
			if !ok {
				return NewValidationError("agent", spec.ID, "dependencies", fmt.Errorf("dependency '%s' not found", dep))
			}
			if upstream.Stage >= spec.Stage {
				return NewValidationError("agent", spec.ID, "dependencies",
					fmt.Errorf("dependency '%s' is in stage %d, must be earlier than stage %d", dep, upstream.Stage, spec.Stage))
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(v.specs))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return NewValidationError("agent", id, "dependencies", fmt.Errorf("dependency cycle detected"))
		}
		state[id] = visiting
		for _, dep := range v.byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for i := range v.specs {
		if err := visit(v.specs[i].ID); err != nil {
			return err
		}
	}
	return nil
}
