// Package server exposes a worker Service over JSON/HTTP, mirroring the
// client package on the other side of the RPC boundary.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/api/respond"
	"github.com/aliskhannn/image-platform/internal/rpc"
	"github.com/aliskhannn/image-platform/internal/worker"
)

// Handler adapts the worker service to HTTP.
type Handler struct {
	service *worker.Service
}

// NewHandler creates a Handler for the given worker service.
func NewHandler(s *worker.Service) *Handler {
	return &Handler{service: s}
}

// Process handles a Process RPC call. Malformed requests are transport-level
// errors; everything past decoding is answered with a 200 carrying the
// worker's result, success or failure.
func (h *Handler) Process(c *ginext.Context) {
	var req rpc.ProcessRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Err(err).Msg("failed to decode process request")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid process request: %v", err))
		return
	}

	res := h.service.Process(c.Request.Context(), req)
	c.JSON(http.StatusOK, res)
}

// Status handles a GetStatus RPC call.
func (h *Handler) Status(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid job id: %v", err))
		return
	}

	c.JSON(http.StatusOK, h.service.Status(id))
}

// Setup builds the worker RPC router.
func Setup(h *Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	g := r.Group("/rpc")

	g.POST("/process", h.Process)  // run a job
	g.GET("/status/:id", h.Status) // last known result for a job id

	return r
}
