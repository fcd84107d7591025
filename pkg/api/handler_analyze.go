package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickermind/tickermind/pkg/engine"
	"github.com/tickermind/tickermind/pkg/events"
)

// AnalyzeBody is the request body for POST /api/analyze.
type AnalyzeBody struct {
	Symbol               string            `json:"symbol" binding:"required"`
	EnabledOverrides     map[string]bool   `json:"enabled_overrides"`
	OperatorInstructions map[string]string `json:"operator_instructions"`
	Stages               []int             `json:"stages"`
}

// Analyze handles POST /api/analyze. It starts a session and streams its
// progress events as NDJSON until the terminal event. A client disconnect
// cancels the session.
func (s *Server) Analyze(c *gin.Context) {
	var body AnalyzeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}

	active, err := s.manager.Start(engine.AnalyzeRequest{
		Symbol:               body.Symbol,
		EnabledOverrides:     body.EnabledOverrides,
		OperatorInstructions: body.OperatorInstructions,
		Stages:               body.Stages,
	})
	if err != nil {
		// Start only fails on request or configuration problems, so plain
		// errors without a domain sentinel are the caller's fault.
		if status, _ := classifyError(err); status == http.StatusInternalServerError {
			writeBadRequest(c, err)
			return
		}
		s.writeError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Session-ID", active.Session.ID)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	enc := json.NewEncoder(c.Writer)
	ctx := c.Request.Context()
	for {
		ev, err := active.Stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, events.ErrStreamClosed) {
				// Subscriber went away mid-run; the session must not keep
				// spending provider budget with nobody watching.
				active.Cancel()
				s.log.Info("stream subscriber disconnected", "session_id", active.Session.ID)
			}
			return
		}
		if err := enc.Encode(ev); err != nil {
			active.Cancel()
			return
		}
		c.Writer.Flush()
	}
}
