package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	coachdomain "github.com/fiscoach/fiscoach/internal/coach/domain"
)

type createCoachRequest struct {
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Bio         string         `json:"bio"`
	Specialties map[string]any `json:"specialties"`
}

func (s *Server) CreateCoach(c *gin.Context) {
	var req createCoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coach, err := s.coachSvc.Create(c.Request.Context(), coachdomain.CreateCoachRequest{
		UserID:      strings.TrimSpace(req.UserID),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       strings.TrimSpace(req.Email),
		Bio:         strings.TrimSpace(req.Bio),
		Specialties: req.Specialties,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, coach)
}

func (s *Server) ListCoaches(c *gin.Context) {
	items, err := s.coachSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetCoachByID(c *gin.Context) {
	coach, err := s.coachSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, coach)
}

func (s *Server) DeactivateCoach(c *gin.Context) {
	if err := s.coachSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
