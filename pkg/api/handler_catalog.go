package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// requireCatalog answers 503 when no catalog store is configured.
func (s *Server) requireCatalog(c *gin.Context) bool {
	if s.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog is not configured"})
		return false
	}
	return true
}

// SearchStocks handles GET /api/stocks/search?q=&limit=.
func (s *Server) SearchStocks(c *gin.Context) {
	if !s.requireCatalog(c) {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	results, err := s.catalog.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks": results})
}

// GetStock handles GET /api/stocks/:symbol.
func (s *Server) GetStock(c *gin.Context) {
	if !s.requireCatalog(c) {
		return
	}
	info, err := s.catalog.Lookup(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetHistory handles GET /api/history?symbol=&limit=.
func (s *Server) GetHistory(c *gin.Context) {
	if !s.requireCatalog(c) {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := s.catalog.History(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
