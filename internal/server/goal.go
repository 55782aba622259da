package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	goaldomain "github.com/fiscoach/fiscoach/internal/goal/domain"
)

type createGoalRequest struct {
	Name        string     `json:"name"`
	TargetMinor int64      `json:"target_minor"`
	Currency    string     `json:"currency"`
	TargetDate  *time.Time `json:"target_date"`
}

type updateGoalRequest struct {
	Name       *string `json:"name"`
	SavedMinor *int64  `json:"saved_minor"`
	Status     *string `json:"status"`
}

func (s *Server) CreateGoal(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	goal, err := s.goalSvc.Create(c.Request.Context(), goaldomain.CreateGoalRequest{
		Name:        strings.TrimSpace(req.Name),
		TargetMinor: req.TargetMinor,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		TargetDate:  req.TargetDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (s *Server) ListGoals(c *gin.Context) {
	items, err := s.goalSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetGoalByID(c *gin.Context) {
	goal, err := s.goalSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (s *Server) UpdateGoal(c *gin.Context) {
	var req updateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	domainReq := goaldomain.UpdateGoalRequest{
		Name:       req.Name,
		SavedMinor: req.SavedMinor,
	}
	if req.Status != nil {
		status := goaldomain.GoalStatus(*req.Status)
		domainReq.Status = &status
	}

	goal, err := s.goalSvc.Update(c.Request.Context(), c.Param("id"), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (s *Server) DeleteGoal(c *gin.Context) {
	if err := s.goalSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
