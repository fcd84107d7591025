package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickermind/tickermind/pkg/catalog"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/evidence"
	"github.com/tickermind/tickermind/pkg/models"
	"github.com/tickermind/tickermind/pkg/session"
)

// writeError maps domain errors to HTTP error responses. Errors that carry
// an engine error kind include it so clients can branch without parsing
// messages.
func (s *Server) writeError(c *gin.Context, err error) {
	status, kind := classifyError(err)

	body := gin.H{"error": err.Error()}
	if kind != "" {
		body["kind"] = string(kind)
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, body)
}

// classifyError returns the HTTP status and error kind for a domain error.
func classifyError(err error) (int, models.ErrorKind) {
	var validErr *config.ValidationError
	switch {
	case errors.As(err, &validErr):
		return http.StatusBadRequest, ""
	case errors.Is(err, config.ErrAgentNotFound),
		errors.Is(err, config.ErrProfileNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, evidence.ErrProviderNotFound),
		errors.Is(err, catalog.ErrStockNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, config.ErrUnknownOverride):
		return http.StatusBadRequest, ""
	case errors.Is(err, config.ErrInvariantViolation):
		return http.StatusConflict, models.ErrorKindInvariantViolation
	case errors.Is(err, config.ErrConfigWrite):
		return http.StatusInternalServerError, models.ErrorKindConfigWrite
	case errors.Is(err, config.ErrInvalidDocument):
		return http.StatusInternalServerError, ""
	}
	return http.StatusInternalServerError, ""
}

// writeBadRequest is for request-shape errors that carry no domain sentinel.
func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
