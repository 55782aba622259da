package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	transactiondomain "github.com/fiscoach/fiscoach/internal/transaction/domain"
)

type createTransactionRequest struct {
	AccountID   string         `json:"account_id"`
	AmountMinor int64          `json:"amount_minor"`
	Currency    string         `json:"currency"`
	Category    string         `json:"category"`
	Merchant    string         `json:"merchant"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Metadata    map[string]any `json:"metadata"`
}

type importTransactionsRequest struct {
	FileName string                     `json:"file_name"`
	Rows     []createTransactionRequest `json:"rows"`
}

func (r createTransactionRequest) toDomain() transactiondomain.CreateTransactionRequest {
	return transactiondomain.CreateTransactionRequest{
		AccountID:   strings.TrimSpace(r.AccountID),
		AmountMinor: r.AmountMinor,
		Currency:    strings.ToUpper(strings.TrimSpace(r.Currency)),
		Category:    strings.TrimSpace(r.Category),
		Merchant:    strings.TrimSpace(r.Merchant),
		OccurredAt:  r.OccurredAt,
		Metadata:    r.Metadata,
	}
}

func (s *Server) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txn, err := s.transactionSvc.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (s *Server) ListTransactions(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	req := transactiondomain.ListTransactionRequest{
		AccountID: c.Query("account_id"),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
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

	items, nextToken, err := s.transactionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            items,
		"next_page_token": nextToken,
	})
}

func (s *Server) GetTransactionByID(c *gin.Context) {
	txn, err := s.transactionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	if err := s.transactionSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) ImportTransactions(c *gin.Context) {
	var req importTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rows := make([]transactiondomain.CreateTransactionRequest, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, row.toDomain())
	}

	batch, err := s.transactionSvc.ImportBatch(c.Request.Context(), transactiondomain.CreateBatchRequest{
		FileName: strings.TrimSpace(req.FileName),
		Rows:     rows,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordTransactionImport(c.Request.Context(), int64(batch.RowCount))
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) ListBatches(c *gin.Context) {
	items, err := s.transactionSvc.ListBatches(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetBatchByID(c *gin.Context) {
	batch, err := s.transactionSvc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}
