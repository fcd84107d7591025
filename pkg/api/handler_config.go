package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConfigResponse is returned by GET /api/config.
type ConfigResponse struct {
	SelectedProfile string                     `json:"selected_profile"`
	Overrides       map[string]bool            `json:"overrides"`
	Profiles        []string                   `json:"profiles"`
	CustomProfiles  map[string]map[string]bool `json:"custom_profiles,omitempty"`
}

// GetConfig handles GET /api/config.
func (s *Server) GetConfig(c *gin.Context) {
	registry := s.engine.Registry()
	state := registry.State()
	c.JSON(http.StatusOK, ConfigResponse{
		SelectedProfile: state.SelectedProfile,
		Overrides:       state.Overrides,
		Profiles:        registry.Profiles(),
		CustomProfiles:  state.Profiles,
	})
}

type selectProfileBody struct {
	Profile string `json:"profile" binding:"required"`
}

// SelectProfile handles POST /api/config/profile.
func (s *Server) SelectProfile(c *gin.Context) {
	var body selectProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := s.engine.Registry().ApplyProfile(body.Profile); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected_profile": body.Profile})
}

type saveOverridesBody struct {
	Overrides map[string]bool `json:"overrides" binding:"required"`
}

// SaveOverrides handles POST /api/config/overrides.
func (s *Server) SaveOverrides(c *gin.Context) {
	var body saveOverridesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := s.engine.Registry().SaveOverrides(body.Overrides); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": body.Overrides})
}

type saveProfileBody struct {
	Name    string          `json:"name" binding:"required"`
	Enabled map[string]bool `json:"enabled" binding:"required"`
}

// SaveProfile handles POST /api/config/profiles.
func (s *Server) SaveProfile(c *gin.Context) {
	var body saveProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := s.engine.Registry().SaveProfile(body.Name, body.Enabled); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": body.Name})
}

// ReloadConfig handles POST /api/config/reload. It re-reads the catalogue
// and state documents from disk.
func (s *Server) ReloadConfig(c *gin.Context) {
	if err := s.engine.Registry().Reload(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
