package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cttsync/internal/coordinator"
	"cttsync/internal/logging"
)

const defaultRunsLimit = 20

// StatusResponse answers GET /api/status.
type StatusResponse struct {
	Running bool                    `json:"running"`
	LastRun *coordinator.RunSummary `json:"lastRun"`
}

// Run triggers a batch. With ?wait=true it answers with the finished
// summary; otherwise 202 for a new run and 409 when one is already going.
func (h *Handler) Run(c *gin.Context) {
	wait, _ := strconv.ParseBool(c.Query("wait"))

	res, err := h.runner.Trigger(c.Request.Context(), wait)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if wait {
		c.JSON(http.StatusOK, res.Summary)
		return
	}
	code := http.StatusAccepted
	if !res.Started {
		code = http.StatusConflict
	}
	c.JSON(code, res)
}

// Status reports whether a run is in progress and the last summary.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Running: h.runner.IsRunInProgress(),
		LastRun: h.runner.LastSummary(),
	})
}

type patchOrdersRequest struct {
	OrderID  any    `json:"orderId"`
	Tracking string `json:"tracking"`
}

// PatchOrders synchronously reconciles the orders selected by the body's
// orderId or tracking; an empty body selects every order.
func (h *Handler) PatchOrders(c *gin.Context) {
	filter, err := readFilter(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.runner.TriggerSelected(c.Request.Context(), filter)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, summary)
	}
}

func readFilter(body io.Reader) (coordinator.Filter, error) {
	var filter coordinator.Filter
	if body == nil {
		return filter, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return filter, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return filter, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var req patchOrdersRequest
	if err := dec.Decode(&req); err != nil {
		return filter, fmt.Errorf("invalid JSON body: %w", err)
	}
	switch v := req.OrderID.(type) {
	case nil:
	case string:
		filter.OrderID = strings.TrimSpace(v)
	case json.Number:
		filter.OrderID = v.String()
	default:
		return filter, fmt.Errorf("orderId must be a string or number")
	}
	filter.Tracking = strings.TrimSpace(req.Tracking)
	return filter, nil
}

// Runs lists stored summaries, newest first.
func (h *Handler) Runs(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if runs == nil {
		runs = []*coordinator.RunSummary{}
	}
	c.JSON(http.StatusOK, runs)
}
