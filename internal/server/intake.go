package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/beckn/internal/responder"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	accept[T any] func(*gin.Context, *T) (*responder.Job, error)

	// CancelResponse reports how many pending responder jobs were dropped
	CancelResponse struct {
		TransactionID api.TransactionID `json:"transaction_id"`
		Cancelled     int               `json:"cancelled"`
	}
)

func (s *Server) handleSearch(c *gin.Context) {
	handleIntake[api.SearchRequest](c, api.ActionSearch,
		func(c *gin.Context, req *api.SearchRequest) (*responder.Job, error) {
			return s.responder.Search(c.Request.Context(), req)
		},
		func(req *api.SearchRequest) *api.Context { return &req.Context },
	)
}

func (s *Server) handleSelect(c *gin.Context) {
	handleIntake[api.SelectRequest](c, api.ActionSelect,
		func(c *gin.Context, req *api.SelectRequest) (*responder.Job, error) {
			return s.responder.Select(c.Request.Context(), req)
		},
		func(req *api.SelectRequest) *api.Context { return &req.Context },
	)
}

func (s *Server) handleConfirm(c *gin.Context) {
	handleIntake[api.ConfirmRequest](c, api.ActionConfirm,
		func(c *gin.Context, req *api.ConfirmRequest) (*responder.Job, error) {
			return s.responder.Confirm(c.Request.Context(), req)
		},
		func(req *api.ConfirmRequest) *api.Context { return &req.Context },
	)
}

// handleIntake acknowledges receipt only. The callback carrying the result
// is posted later by the responder
func handleIntake[T any](
	c *gin.Context, action api.Action, fn accept[T],
	contextOf func(*T) *api.Context,
) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid request",
			log.Action(action),
			log.Error(err))
		nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest, err)
		return
	}
	ctx := contextOf(&req)
	if err := ctx.Validate(); err != nil {
		nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest, err)
		return
	}

	job, err := fn(c, &req)
	if err != nil {
		slog.Warn("Request rejected",
			log.TransactionID(ctx.TransactionID),
			log.MessageID(ctx.MessageID),
			log.Action(action),
			log.Error(err))
		code := api.ErrCodeInternal
		status := http.StatusInternalServerError
		if errors.Is(err, responder.ErrWrongAction) ||
			errors.Is(err, responder.ErrNoItems) {
			code = api.ErrCodeInvalidRequest
			status = http.StatusBadRequest
		}
		nack(c, status, code, err)
		return
	}

	slog.Debug("Request accepted",
		log.TransactionID(ctx.TransactionID),
		log.MessageID(ctx.MessageID),
		log.Action(action),
		slog.Time("due", job.At))
	c.JSON(http.StatusOK, api.NewAck())
}

func (s *Server) cancelJobs(c *gin.Context) {
	id := api.TransactionID(c.Param("id"))
	n := s.responder.Cancel(c.Request.Context(), id)
	c.JSON(http.StatusOK, CancelResponse{
		TransactionID: id,
		Cancelled:     n,
	})
}
