package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/api/respond"
	"github.com/aliskhannn/image-platform/internal/model"
	jobrepo "github.com/aliskhannn/image-platform/internal/repository/job"
	jobsvc "github.com/aliskhannn/image-platform/internal/service/job"
)

var allowedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// service defines the interface for job-related operations.
type service interface {
	CreateJob(ctx context.Context, userID, filename string, file io.Reader, ops []model.Operation) (model.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	OpenOutput(ctx context.Context, id uuid.UUID) (model.Job, io.ReadCloser, error)
}

// Handler provides HTTP handlers for job-related endpoints.
type Handler struct {
	service  service
	validate *validator.Validate
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{
		service:  s,
		validate: validator.New(),
	}
}

// OperationRequest is one requested operation as sent by the client.
type OperationRequest struct {
	Type    string `json:"type" validate:"required,oneof=resize grayscale compress watermark"`
	Width   int    `json:"width" validate:"gte=0,lte=10000"`
	Height  int    `json:"height" validate:"gte=0,lte=10000"`
	Quality int    `json:"quality" validate:"gte=0,lte=100"`
	Text    string `json:"text" validate:"max=128"`
}

// Create handles the HTTP request for creating a job. It reads the multipart
// form, stages the uploaded file, persists the job, and enqueues it for
// dispatch.
func (h *Handler) Create(c *ginext.Context) {
	// Parse the multipart form with a 10MB max memory limit.
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read the uploaded file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("unsupported file type (png/jpg/jpeg/gif/webp)"))
		return
	}

	ops, err := h.parseOperations(c.PostForm("operations"))
	if err != nil {
		zlog.Logger.Err(err).Msg("invalid operations")
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	j, err := h.service.CreateJob(c.Request.Context(), c.PostForm("user_id"), header.Filename, file, ops)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to create job")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create job: %v", err))
		return
	}

	respond.Created(c, map[string]interface{}{
		"job_id":     j.ID,
		"status":     j.Status,
		"output_url": j.OutputURL,
	})
}

// Get returns the job record (status, timestamps, error, output link).
func (h *Handler) Get(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	j, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobrepo.ErrJobNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get job")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get job: %v", err))
		return
	}

	respond.OK(c, j)
}

// Download serves the processed image of a completed job.
func (h *Handler) Download(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	j, reader, err := h.service.OpenOutput(c.Request.Context(), id)
	switch {
	case errors.Is(err, jobrepo.ErrJobNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	case errors.Is(err, jobsvc.ErrJobNotCompleted):
		respond.Fail(c, http.StatusConflict, fmt.Errorf("job not completed (status=%s)", j.Status))
		return
	case errors.Is(err, jobsvc.ErrOutputMissing):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("output file missing"))
		return
	case err != nil:
		zlog.Logger.Err(err).Msg("failed to open job output")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to open output: %v", err))
		return
	}
	defer reader.Close()

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", reader, nil)
}

// parseOperations decodes and validates the ordered operation list. An empty
// field is allowed: the worker substitutes its default pipeline.
func (h *Handler) parseOperations(raw string) ([]model.Operation, error) {
	if raw == "" {
		return nil, nil
	}

	var reqs []OperationRequest
	if err := json.Unmarshal([]byte(raw), &reqs); err != nil {
		return nil, fmt.Errorf("operations must be a JSON array: %v", err)
	}

	ops := make([]model.Operation, 0, len(reqs))
	for i, r := range reqs {
		if err := h.validate.Struct(r); err != nil {
			return nil, fmt.Errorf("invalid operation at index %d: %v", i, err)
		}

		ops = append(ops, model.Operation{
			Type:    model.OperationType(r.Type),
			Width:   r.Width,
			Height:  r.Height,
			Quality: r.Quality,
			Text:    r.Text,
		})
	}

	return ops, nil
}
