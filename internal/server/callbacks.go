package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/beckn/internal/metrics"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

func (s *Server) handleOnSearch(c *gin.Context) {
	var req api.OnSearchRequest
	if !s.bindCallback(c, api.ActionOnSearch, &req, &req.Context) {
		return
	}
	s.applyCallback(c, &req.Context, store.Payload{
		Catalog: req.Message.Catalog,
	})
}

func (s *Server) handleOnSelect(c *gin.Context) {
	var req api.OnSelectRequest
	if !s.bindCallback(c, api.ActionOnSelect, &req, &req.Context) {
		return
	}
	s.applyCallback(c, &req.Context, store.Payload{
		Order: req.Message.Order,
		Quote: req.Message.Quote,
	})
}

func (s *Server) handleOnConfirm(c *gin.Context) {
	var req api.OnConfirmRequest
	if !s.bindCallback(c, api.ActionOnConfirm, &req, &req.Context) {
		return
	}
	s.applyCallback(c, &req.Context, store.Payload{
		Order: req.Message.Order,
	})
}

// bindCallback decodes a callback and checks its envelope. It writes the
// NACK itself and reports false when the callback cannot be used
func (s *Server) bindCallback(
	c *gin.Context, action api.Action, req any, ctx *api.Context,
) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		slog.Warn("Invalid callback",
			log.Action(action),
			log.Error(err))
		s.countCallback(action, metrics.OutcomeInvalid)
		nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest, err)
		return false
	}
	if err := ctx.Validate(); err != nil {
		slog.Warn("Invalid callback context",
			log.TransactionID(ctx.TransactionID),
			log.Action(action),
			log.Error(err))
		s.countCallback(action, metrics.OutcomeInvalid)
		nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest, err)
		return false
	}
	if ctx.Action != action {
		slog.Warn("Callback action does not match endpoint",
			log.TransactionID(ctx.TransactionID),
			log.Action(ctx.Action),
			slog.String("endpoint", string(action)))
		s.countCallback(action, metrics.OutcomeInvalid)
		nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest,
			api.ErrInvalidAction)
		return false
	}
	return true
}

// applyCallback moves the transaction record forward. Callbacks that do not
// fit the record's state are logged and NACKed with 200, since the
// delivery itself was fine
func (s *Server) applyCallback(
	c *gin.Context, ctx *api.Context, p store.Payload,
) {
	tx, err := s.store.ApplyCallback(
		c.Request.Context(), ctx.TransactionID, ctx.Action, p,
	)
	if err == nil {
		slog.Info("Callback applied",
			log.TransactionID(ctx.TransactionID),
			log.MessageID(ctx.MessageID),
			log.Action(ctx.Action),
			log.Status(tx.Status))
		s.countCallback(ctx.Action, metrics.OutcomeApplied)
		c.JSON(http.StatusOK, api.NewAck())
		return
	}

	attrs := []any{
		log.TransactionID(ctx.TransactionID),
		log.MessageID(ctx.MessageID),
		log.Action(ctx.Action),
		log.Error(err),
	}
	switch {
	case errors.Is(err, store.ErrUnknownTransaction):
		slog.Warn("Callback for unknown transaction", attrs...)
		s.countCallback(ctx.Action, metrics.OutcomeRejected)
		nack(c, http.StatusOK, api.ErrCodeUnknownTxn, err)
	case errors.Is(err, store.ErrTerminal):
		slog.Warn("Callback for finished transaction", attrs...)
		s.countCallback(ctx.Action, metrics.OutcomeRejected)
		nack(c, http.StatusOK, api.ErrCodeAlreadyTerminal, err)
	case errors.Is(err, store.ErrUnexpectedAction):
		slog.Warn("Callback out of order", attrs...)
		s.countCallback(ctx.Action, metrics.OutcomeRejected)
		nack(c, http.StatusOK, api.ErrCodeUnexpected, err)
	case errors.Is(err, store.ErrMissingPayload):
		slog.Warn("Callback without payload", attrs...)
		s.countCallback(ctx.Action, metrics.OutcomeInvalid)
		nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest, err)
	default:
		slog.Error("Failed to apply callback", attrs...)
		nack(c, http.StatusInternalServerError, api.ErrCodeInternal, err)
	}
}

func (s *Server) countCallback(action api.Action, outcome metrics.Outcome) {
	if s.metrics != nil {
		s.metrics.Callback(action, outcome)
	}
}

func nack(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, api.NewNack(code, err.Error()))
}
