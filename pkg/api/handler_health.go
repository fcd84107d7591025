package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health. Only the service's own components are
// checked; LLM providers and evidence endpoints are external and excluded.
func (s *Server) Health(c *gin.Context) {
	registry := s.engine.Registry()

	resp := gin.H{
		"status":             "healthy",
		"agents":             len(registry.List()),
		"profiles":           registry.Profiles(),
		"evidence_providers": s.engine.EvidenceProviders().Keys(),
	}

	if s.catalog != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := s.catalog.Health(ctx)
		resp["catalog"] = dbHealth
		if err != nil {
			resp["status"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}
