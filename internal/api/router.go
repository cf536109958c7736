// Package api exposes run triggering and status over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cttsync/internal/coordinator"
)

// Runner is the coordinator as seen by the API.
type Runner interface {
	Trigger(ctx context.Context, wait bool) (*coordinator.TriggerResult, error)
	TriggerSelected(ctx context.Context, filter coordinator.Filter) (*coordinator.RunSummary, error)
	IsRunInProgress() bool
	LastSummary() *coordinator.RunSummary
}

// HistoryReader lists stored runs, newest first.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]*coordinator.RunSummary, error)
}

// Handler serves the API routes.
type Handler struct {
	runner  Runner
	history HistoryReader
}

// NewHandler creates a Handler. history may be nil.
func NewHandler(runner Runner, history HistoryReader) *Handler {
	return &Handler{runner: runner, history: history}
}

// SetupRoutes builds the gin engine.
func SetupRoutes(h *Handler) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(CORS())
	r.Use(Logger())
	r.Use(ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/run", h.Run)
		api.GET("/status", h.Status)
		api.PATCH("/orders", h.PatchOrders)
		api.GET("/runs", h.Runs)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r
}
