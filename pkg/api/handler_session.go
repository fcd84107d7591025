package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListSessions handles GET /api/sessions.
func (s *Server) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.manager.Snapshots()})
}

// GetSession handles GET /api/sessions/:id.
func (s *Server) GetSession(c *gin.Context) {
	active, err := s.manager.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, active.Session.Snapshot())
}

// CancelSession handles POST /api/sessions/:id/cancel. Cancellation is
// cooperative; the response confirms the request, not the outcome.
func (s *Server) CancelSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.manager.Cancel(id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "cancelling"})
}
