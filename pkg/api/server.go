// Package api exposes the analysis engine over HTTP: analysis submission
// with NDJSON progress streaming, the agent catalogue and its profile and
// override configuration, session inspection, evidence passthrough, and the
// stock catalog.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/tickermind/tickermind/pkg/catalog"
	"github.com/tickermind/tickermind/pkg/engine"
	"github.com/tickermind/tickermind/pkg/session"
)

// Server holds the handler dependencies. The catalog store is optional;
// catalog routes answer 503 when it is absent.
type Server struct {
	engine  *engine.Engine
	manager *session.Manager
	catalog *catalog.Store
	log     *slog.Logger
}

// NewServer creates the API server.
func NewServer(eng *engine.Engine, manager *session.Manager, store *catalog.Store, logger *slog.Logger) *Server {
	return &Server{
		engine:  eng,
		manager: manager,
		catalog: store,
		log:     logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), securityHeaders())

	r.GET("/health", s.Health)

	api := r.Group("/api")
	{
		api.POST("/analyze", s.Analyze)

		api.GET("/agents", s.ListAgents)

		api.GET("/config", s.GetConfig)
		api.POST("/config/profile", s.SelectProfile)
		api.POST("/config/overrides", s.SaveOverrides)
		api.POST("/config/profiles", s.SaveProfile)
		api.POST("/config/reload", s.ReloadConfig)

		api.GET("/sessions", s.ListSessions)
		api.GET("/sessions/:id", s.GetSession)
		api.POST("/sessions/:id/cancel", s.CancelSession)

		api.GET("/evidence/:key/:symbol", s.GetEvidence)

		api.GET("/stocks/search", s.SearchStocks)
		api.GET("/stocks/:symbol", s.GetStock)
		api.GET("/history", s.GetHistory)
	}
	return r
}
