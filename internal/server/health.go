package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/beckn/pkg/api"
)

const healthOK = "ok"

// HealthStatus adds responder backlog to the basic health response
type HealthStatus struct {
	api.HealthResponse
	PendingJobs int `json:"pending_jobs"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthStatus{
		HealthResponse: api.HealthResponse{
			Service: serviceName,
			Status:  healthOK,
			Version: s.version,
		},
		PendingJobs: s.responder.Pending(),
	})
}
