package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"dario.cat/mergo"
)

// Document file names inside the registry directory.
const (
	CatalogueFileName = "agents.json"
	StateFileName     = "state.json"
)

// Registry owns the agent catalogue, profiles, and persisted user state.
// Reads are served from memory under a read lock; writes persist to disk
// first and only then swap the in-memory state, so a failed write leaves
// the registry exactly as it was.
type Registry struct {
	mu  sync.RWMutex
	dir string
	log *slog.Logger

	specs        []AgentSpec
	specsByID    map[string]*AgentSpec
	profiles     map[string]map[string]bool // builtin + catalogue profiles
	providerKeys map[string]string
	state        *StateDocument
}

// NewRegistry loads the catalogue and state documents from dir and returns
// a validated registry. A missing agents.json falls back to the built-in
// catalogue; a missing state.json falls back to the default profile with no
// overrides.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		dir: dir,
		log: logger.With("component", "config.registry"),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads both documents from disk, validates them, and atomically
// swaps the in-memory state. On any error the previous state stays active.
func (r *Registry) Reload() error {
	specs := builtinAgents()
	profiles := builtinProfiles()
	providerKeys := builtinProviderKeys()

	var doc CatalogueDocument
	cataloguePath := filepath.Join(r.dir, CatalogueFileName)
	switch err := readJSONFile(cataloguePath, &doc); {
	case err == nil:
		if len(doc.Agents) > 0 {
			specs = doc.Agents
		}
		for name, patch := range doc.Profiles {
			profiles[name] = patch
		}
		for provider, envVar := range doc.ProviderKeys {
			providerKeys[provider] = envVar
		}
	case errors.Is(err, os.ErrNotExist):
		r.log.Info("catalogue document absent, using built-in catalogue", "path", cataloguePath)
	default:
		return err
	}

	state := defaultState()
	statePath := filepath.Join(r.dir, StateFileName)
	switch err := readJSONFile(statePath, state); {
	case err == nil:
		if state.Overrides == nil {
			state.Overrides = map[string]bool{}
		}
		if state.Profiles == nil {
			state.Profiles = map[string]map[string]bool{}
		}
		if state.SelectedProfile == "" {
			state.SelectedProfile = DefaultProfile
		}
	case errors.Is(err, os.ErrNotExist):
		// First run.
	default:
		return err
	}

	if err := NewCatalogueValidator(specs, providerKeys).ValidateAll(); err != nil {
		return err
	}

	byID := make(map[string]*AgentSpec, len(specs))
	for i := range specs {
		byID[specs[i].ID] = &specs[i]
	}

	if err := validateState(state, profiles, byID); err != nil {
		return err
	}

	r.mu.Lock()
	r.specs = specs
	r.specsByID = byID
	r.profiles = profiles
	r.providerKeys = providerKeys
	r.state = state
	r.mu.Unlock()

	r.log.Info("catalogue loaded",
		"agents", len(specs),
		"profiles", len(profiles)+len(state.Profiles),
		"selected_profile", state.SelectedProfile)
	return nil
}

// validateState rejects state documents referencing unknown agents or
// profiles, or disabling a core agent.
func validateState(state *StateDocument, catalogueProfiles map[string]map[string]bool, byID map[string]*AgentSpec) error {
	_, builtin := catalogueProfiles[state.SelectedProfile]
	_, user := state.Profiles[state.SelectedProfile]
	if !builtin && !user {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, state.SelectedProfile)
	}

	checkPatch := func(scope string, patch map[string]bool) error {
		for id, enabled := range patch {
			spec, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %s refers to %q", ErrUnknownOverride, scope, id)
			}
			if !enabled && spec.Core() {
				return fmt.Errorf("%w: %s disables core agent %q", ErrInvariantViolation, scope, id)
			}
		}
		return nil
	}

	if err := checkPatch("overrides", state.Overrides); err != nil {
		return err
	}
	for name, patch := range state.Profiles {
		if err := checkPatch(fmt.Sprintf("profile %q", name), patch); err != nil {
			return err
		}
	}
	for name, patch := range catalogueProfiles {
		if err := checkPatch(fmt.Sprintf("profile %q", name), patch); err != nil {
			return err
		}
	}
	return nil
}

// List returns all agent specs ordered by stage then id. The returned slice
// and its elements are copies.
func (r *Registry) List() []AgentSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AgentSpec, len(r.specs))
	copy(out, r.specs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a copy of the spec with the given id.
func (r *Registry) Get(id string) (AgentSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specsByID[id]
	if !ok {
		return AgentSpec{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return *spec, nil
}

// EnabledFor returns the enabled spec set for the given profile with the
// given sparse overrides merged on top. An empty profile name selects the
// registry's active profile; nil overrides use the persisted ones. The
// result is ordered by stage then id.
func (r *Registry) EnabledFor(profile string, overrides map[string]bool) ([]AgentSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if profile == "" {
		profile = r.state.SelectedProfile
	}
	if overrides == nil {
		overrides = r.state.Overrides
	}

	patch, err := r.profilePatchLocked(profile)
	if err != nil {
		return nil, err
	}

	// Overrides beat the profile patch, which beats the catalogue default.
	effective := map[string]bool{}
	if err := mergo.Merge(&effective, patch, mergo.WithOverride); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&effective, overrides, mergo.WithOverride); err != nil {
		return nil, err
	}

	var out []AgentSpec
	for _, spec := range r.specs {
		enabled := spec.Enabled
		if v, ok := effective[spec.ID]; ok {
			enabled = v
		}
		if !enabled {
			if spec.Core() {
				return nil, fmt.Errorf("%w: core agent %q is disabled", ErrInvariantViolation, spec.ID)
			}
			continue
		}
		out = append(out, spec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Enabled returns the enabled spec set under the active profile and
// persisted overrides.
func (r *Registry) Enabled() ([]AgentSpec, error) {
	return r.EnabledFor("", nil)
}

func (r *Registry) profilePatchLocked(name string) (map[string]bool, error) {
	if patch, ok := r.state.Profiles[name]; ok {
		return patch, nil
	}
	if patch, ok := r.profiles[name]; ok {
		return patch, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// ApplyProfile switches the active profile and persists the state document.
// On a write failure the prior state remains active.
func (r *Registry) ApplyProfile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.profilePatchLocked(name); err != nil {
		return err
	}

	next := r.state.Clone()
	next.SelectedProfile = name
	if err := r.persistStateLocked(next); err != nil {
		return err
	}
	r.state = next
	r.log.Info("profile applied", "profile", name)
	return nil
}

// SaveOverrides replaces the sparse overrides and persists the state
// document. Unknown agent ids and core-agent disables are rejected before
// anything touches disk.
func (r *Registry) SaveOverrides(overrides map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, enabled := range overrides {
		spec, ok := r.specsByID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOverride, id)
		}
		if !enabled && spec.Core() {
			return fmt.Errorf("%w: cannot disable core agent %q", ErrInvariantViolation, id)
		}
	}

	next := r.state.Clone()
	next.Overrides = map[string]bool{}
	for id, enabled := range overrides {
		next.Overrides[id] = enabled
	}
	if err := r.persistStateLocked(next); err != nil {
		return err
	}
	r.state = next
	r.log.Info("overrides saved", "count", len(overrides))
	return nil
}

// SaveProfile creates or replaces a user-defined profile and persists the
// state document. Built-in profile names cannot be shadowed.
func (r *Registry) SaveProfile(name string, patch map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("%w: profile name is required", ErrProfileNotFound)
	}
	if _, ok := r.profiles[name]; ok {
		return fmt.Errorf("%w: profile %q is built in", ErrInvariantViolation, name)
	}
	for id, enabled := range patch {
		spec, ok := r.specsByID[id]
		if !ok {
			return fmt.Errorf("%w: profile %q refers to %q", ErrUnknownOverride, name, id)
		}
		if !enabled && spec.Core() {
			return fmt.Errorf("%w: profile %q disables core agent %q", ErrInvariantViolation, name, id)
		}
	}

	next := r.state.Clone()
	cp := make(map[string]bool, len(patch))
	for id, enabled := range patch {
		cp[id] = enabled
	}
	next.Profiles[name] = cp
	if err := r.persistStateLocked(next); err != nil {
		return err
	}
	r.state = next
	r.log.Info("profile saved", "profile", name, "entries", len(patch))
	return nil
}

// State returns a copy of the persisted user state.
func (r *Registry) State() *StateDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Profiles returns all known profile names, built-in and user-defined.
func (r *Registry) Profiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles)+len(r.state.Profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	for name := range r.state.Profiles {
		if _, ok := r.profiles[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ProviderKeys returns a copy of the provider → credential env var map.
func (r *Registry) ProviderKeys() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.providerKeys))
	for provider, envVar := range r.providerKeys {
		out[provider] = envVar
	}
	return out
}

func (r *Registry) persistStateLocked(state *StateDocument) error {
	return writeJSONAtomic(filepath.Join(r.dir, StateFileName), state)
}
