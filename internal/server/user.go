package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fiscoach/fiscoach/internal/tenantctx"
	userdomain "github.com/fiscoach/fiscoach/internal/user/domain"
)

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Token       string `json:"token"`
}

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.usersvc.Create(c.Request.Context(), userdomain.CreateUserRequest{
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        tenantctx.Role(strings.TrimSpace(req.Role)),
		RawToken:    req.Token,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *Server) ListUsers(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	items, err := s.usersvc.List(c.Request.Context(), userdomain.ListUserRequest{
		Role:      tenantctx.Role(c.Query("role")),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetUserByID(c *gin.Context) {
	user, err := s.usersvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *Server) DeactivateUser(c *gin.Context) {
	if err := s.usersvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
