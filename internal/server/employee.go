package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	employeedomain "github.com/fiscoach/fiscoach/internal/employee/domain"
)

type createEmployeeRequest struct {
	UserID         string     `json:"user_id"`
	FullName       string     `json:"full_name"`
	Department     string     `json:"department"`
	EmployeeNumber string     `json:"employee_number"`
	HiredAt        *time.Time `json:"hired_at"`
}

func (s *Server) CreateEmployee(c *gin.Context) {
	var req createEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.employeeSvc.Create(c.Request.Context(), employeedomain.CreateProfileRequest{
		UserID:         strings.TrimSpace(req.UserID),
		FullName:       strings.TrimSpace(req.FullName),
		Department:     strings.TrimSpace(req.Department),
		EmployeeNumber: strings.TrimSpace(req.EmployeeNumber),
		HiredAt:        req.HiredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) ListEmployees(c *gin.Context) {
	items, err := s.employeeSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetEmployeeByID(c *gin.Context) {
	profile, err := s.employeeSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) DeleteEmployee(c *gin.Context) {
	if err := s.employeeSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
