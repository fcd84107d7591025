package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CatalogueDocument is the on-disk agent catalogue (agents.json). When the
// file is absent the built-in catalogue applies.
type CatalogueDocument struct {
	Agents []AgentSpec `json:"agents"`

	// Profiles are named enabled-set patches: profile → agent id → enabled.
	Profiles map[string]map[string]bool `json:"profiles,omitempty"`

	// ProviderKeys maps a provider name to the environment variable that
	// holds its API key. The key material itself never enters a document.
	ProviderKeys map[string]string `json:"providerKeys,omitempty"`
}

// StateDocument is the persisted user state (state.json): the selected
// profile, sparse enabled overrides, and user-defined profiles.
type StateDocument struct {
	SelectedProfile string                     `json:"selectedProfile"`
	Overrides       map[string]bool            `json:"overrides"`
	Profiles        map[string]map[string]bool `json:"profiles"`
}

// Clone returns a deep copy so callers can mutate without racing readers.
func (d *StateDocument) Clone() *StateDocument {
	out := &StateDocument{
		SelectedProfile: d.SelectedProfile,
		Overrides:       make(map[string]bool, len(d.Overrides)),
		Profiles:        make(map[string]map[string]bool, len(d.Profiles)),
	}
	for k, v := range d.Overrides {
		out.Overrides[k] = v
	}
	for name, patch := range d.Profiles {
		cp := make(map[string]bool, len(patch))
		for k, v := range patch {
			cp[k] = v
		}
		out.Profiles[name] = cp
	}
	return out
}

func defaultState() *StateDocument {
	return &StateDocument{
		SelectedProfile: DefaultProfile,
		Overrides:       map[string]bool{},
		Profiles:        map[string]map[string]bool{},
	}
}

// readJSONFile unmarshals path into v. A missing file returns os.ErrNotExist.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, filepath.Base(path), err)
	}
	return nil
}

// writeJSONAtomic persists v to path via write-to-temp + rename so readers
// never observe a partial document. Failures are surfaced as ErrConfigWrite
// and leave any existing file untouched.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrConfigWrite, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best-effort cleanup when the rename never happened.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	return nil
}
