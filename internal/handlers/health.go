package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger checks database reachability; *pgxpool.Pool satisfies it
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler reports service and database status
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler. db may be nil when the service
// runs without a database.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status: "ok",
	}

	if h.db == nil {
		response.Database = "not configured"
		c.JSON(http.StatusOK, response)
		return
	}

	if err := h.db.Ping(c.Request.Context()); err != nil {
		response.Status = "degraded"
		response.Database = "disconnected"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.Database = "connected"
	c.JSON(http.StatusOK, response)
}
