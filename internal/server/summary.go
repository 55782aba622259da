package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ComputeSummary(c *gin.Context) {
	summary, err := s.summarySvc.Compute(c.Request.Context(), c.Param("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetSummary(c *gin.Context) {
	summary, err := s.summarySvc.Get(c.Request.Context(), c.Param("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListSummaries(c *gin.Context) {
	items, err := s.summarySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
