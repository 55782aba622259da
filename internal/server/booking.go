package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	bookingdomain "github.com/fiscoach/fiscoach/internal/booking/domain"
)

type createSlotRequest struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

func (s *Server) CreateSlot(c *gin.Context) {
	var req createSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	slot, err := s.bookingSvc.CreateSlot(c.Request.Context(), bookingdomain.CreateSlotRequest{
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

func (s *Server) ListSlots(c *gin.Context) {
	req := bookingdomain.ListSlotRequest{
		CoachID: c.Query("coach_id"),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_from", "must be RFC3339"))
			return
		}
		req.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_to", "must be RFC3339"))
			return
		}
		req.To = t
	}

	items, err := s.bookingSvc.ListSlots(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) WithdrawSlot(c *gin.Context) {
	slot, err := s.bookingSvc.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

func (s *Server) ReserveSlot(c *gin.Context) {
	reservation, err := s.bookingSvc.Reserve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

func (s *Server) ListReservations(c *gin.Context) {
	items, err := s.bookingSvc.ListReservations(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetReservation(c *gin.Context) {
	reservation, err := s.bookingSvc.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

func (s *Server) CancelReservation(c *gin.Context) {
	reservation, err := s.bookingSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

func (s *Server) CompleteReservation(c *gin.Context) {
	reservation, err := s.bookingSvc.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}
