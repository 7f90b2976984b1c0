package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/beckn/internal/housekeeping"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

// TransactionsResponse lists the records held by the store
type TransactionsResponse struct {
	Transactions []*api.Transaction `json:"transactions"`
	Count        int                `json:"count"`
}

func (s *Server) handleFlow(c *gin.Context) {
	var req api.FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orchestrator.ExecuteFlow(c.Request.Context(), &req))
}

func (s *Server) handleExecute(c *gin.Context) {
	var req api.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	logs := s.orchestrator.ExecutePlan(
		c.Request.Context(), req.Actions, req.Location,
	)
	c.JSON(http.StatusOK, api.ExecutionResponse{Log: logs})
}

func (s *Server) handleMitigate(c *gin.Context) {
	var req api.MitigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	plan, err := s.planner.Plan(c.Request.Context(), &req)
	if err != nil {
		slog.Error("Planner failed", log.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) listTransactions(c *gin.Context) {
	txs, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("Failed to list transactions: %v", err),
			Status: http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, TransactionsResponse{
		Transactions: txs,
		Count:        len(txs),
	})
}

func (s *Server) getTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	id := api.TransactionID(c.Param("id"))

	tx, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrUnknownTransaction) && s.archive != nil {
		tx, err = s.archive.Get(ctx, id)
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, tx)
	case errors.Is(err, store.ErrUnknownTransaction),
		errors.Is(err, housekeeping.ErrNotArchived):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("Transaction not found: %s", id),
			Status: http.StatusNotFound,
		})
	default:
		slog.Error("Failed to get transaction",
			log.TransactionID(id),
			log.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("Failed to get transaction: %v", err),
			Status: http.StatusInternalServerError,
		})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Error:  fmt.Sprintf("Invalid request: %v", err),
		Status: http.StatusBadRequest,
	})
}
