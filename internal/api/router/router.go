package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-platform/internal/api/handlers/job"
	"github.com/aliskhannn/image-platform/internal/middleware"
)

func Setup(h *job.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/jobs", h.Create)               // create and enqueue a job
	api.GET("/jobs/:id", h.Get)               // job status for user-facing display
	api.GET("/jobs/:id/download", h.Download) // processed image of a completed job

	return r
}
