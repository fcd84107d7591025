package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickermind/tickermind/pkg/config"
)

// AgentView is the public projection of a catalogue spec: prompts stay
// server-side.
type AgentView struct {
	ID               string                   `json:"id"`
	Role             string                   `json:"role"`
	Stage            int                      `json:"stage"`
	Priority         config.Priority          `json:"priority"`
	Provider         string                   `json:"provider"`
	Model            string                   `json:"model"`
	Dependencies     []string                 `json:"dependencies,omitempty"`
	EvidenceBindings []config.EvidenceBinding `json:"evidence_bindings,omitempty"`
	Enabled          bool                     `json:"enabled"`
	EffectiveEnabled bool                     `json:"effective_enabled"`
}

// ListAgents handles GET /api/agents.
func (s *Server) ListAgents(c *gin.Context) {
	registry := s.engine.Registry()

	enabled, err := registry.Enabled()
	if err != nil {
		s.writeError(c, err)
		return
	}
	on := make(map[string]bool, len(enabled))
	for _, spec := range enabled {
		on[spec.ID] = true
	}

	specs := registry.List()
	views := make([]AgentView, 0, len(specs))
	for _, spec := range specs {
		views = append(views, AgentView{
			ID:               spec.ID,
			Role:             spec.Role,
			Stage:            spec.Stage,
			Priority:         spec.Priority,
			Provider:         spec.Binding.Provider,
			Model:            spec.Binding.Model,
			Dependencies:     spec.Dependencies,
			EvidenceBindings: spec.EvidenceBindings,
			Enabled:          spec.Enabled,
			EffectiveEnabled: on[spec.ID],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"agents":  views,
		"profile": registry.State().SelectedProfile,
	})
}
