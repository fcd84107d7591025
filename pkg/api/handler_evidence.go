package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEvidence handles GET /api/evidence/:key/:symbol. It fetches one
// evidence source directly, outside any session, for debugging bindings.
func (s *Server) GetEvidence(c *gin.Context) {
	provider, err := s.engine.EvidenceProviders().Get(c.Param("key"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.engine.Settings().Timeouts.Evidence)
	defer cancel()

	source, err := provider.Fetch(ctx, c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, source)
}
