// Package worker implements the server side of the RPC contract: it resolves
// locators to local resources, runs the image pipeline, persists the output,
// and remembers the last result per job id for status lookups.
package worker

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/metrics"
	"github.com/aliskhannn/image-platform/internal/pipeline"
	"github.com/aliskhannn/image-platform/internal/rpc"
)

// resultStore keeps the last known result per job id, used only by GetStatus.
type resultStore interface {
	Put(res rpc.ProcessResponse)
	Get(id uuid.UUID) (rpc.ProcessResponse, bool)
}

// Service handles Process and GetStatus calls. Stateless per call except for
// the injected result store.
type Service struct {
	pipeline *pipeline.Pipeline
	results  resultStore
}

// NewService creates a Service with the given pipeline and result store.
func NewService(p *pipeline.Pipeline, rs resultStore) *Service {
	return &Service{pipeline: p, results: rs}
}

// Process runs a job end to end. Every failure along the way is caught,
// recorded, and returned as a Failed result; no processing error is allowed
// to propagate to the transport layer.
func (s *Service) Process(ctx context.Context, req rpc.ProcessRequest) rpc.ProcessResponse {
	s.results.Put(rpc.ProcessResponse{JobID: req.JobID, Status: rpc.ResultProcessing})

	res, err := s.process(ctx, req)
	if err != nil {
		zlog.Logger.Err(err).Str("job_id", req.JobID.String()).Msg("processing failed")
		res = rpc.ProcessResponse{
			JobID:        req.JobID,
			Status:       rpc.ResultFailed,
			ErrorMessage: err.Error(),
		}
	}

	metrics.WorkerProcessTotal.WithLabelValues(string(res.Status)).Inc()
	s.results.Put(res)
	return res
}

func (s *Service) process(ctx context.Context, req rpc.ProcessRequest) (rpc.ProcessResponse, error) {
	if req.SourceURI == "" {
		return rpc.ProcessResponse{}, fmt.Errorf("source uri is required")
	}
	if req.DestinationURI == "" {
		return rpc.ProcessResponse{}, fmt.Errorf("destination uri is required")
	}

	sourcePath, err := resolveLocalPath(req.SourceURI)
	if err != nil {
		return rpc.ProcessResponse{}, err
	}
	destinationPath, err := resolveLocalPath(req.DestinationURI)
	if err != nil {
		return rpc.ProcessResponse{}, err
	}

	if _, err := os.Stat(sourcePath); err != nil {
		return rpc.ProcessResponse{}, fmt.Errorf("source image not found: %s", sourcePath)
	}

	if dir := filepath.Dir(destinationPath); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return rpc.ProcessResponse{}, fmt.Errorf("failed to create destination directory: %w", err)
		}
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return rpc.ProcessResponse{}, fmt.Errorf("failed to read source image: %w", err)
	}

	transforms := pipeline.FromOperations(req.Operations)
	if len(transforms) == 0 {
		// A job with no requested operations still produces a visibly
		// processed result.
		transforms = pipeline.DefaultTransforms()
	}

	processed, err := s.pipeline.ProcessImage(ctx, data, transforms)
	if err != nil {
		return rpc.ProcessResponse{}, err
	}

	if err := os.WriteFile(destinationPath, processed, 0o644); err != nil {
		return rpc.ProcessResponse{}, fmt.Errorf("failed to write output image: %w", err)
	}

	return rpc.ProcessResponse{
		JobID:     req.JobID,
		Status:    rpc.ResultCompleted,
		OutputURI: destinationPath,
	}, nil
}

// Status returns the last known result for a job id, or an explicit Unknown
// result if the worker has no record (e.g. after a restart).
func (s *Service) Status(id uuid.UUID) rpc.ProcessResponse {
	if res, ok := s.results.Get(id); ok {
		return res
	}
	return rpc.ProcessResponse{JobID: id, Status: rpc.ResultUnknown}
}

// resolveLocalPath maps a locator to a local filesystem path. A file:// URI
// resolves to its local path, a bare path is used as-is, and any other
// absolute URI scheme is rejected.
func resolveLocalPath(uriOrPath string) (string, error) {
	u, err := url.Parse(uriOrPath)
	if err != nil || u.Scheme == "" {
		return uriOrPath, nil
	}

	if u.Scheme == "file" {
		return u.Path, nil
	}

	return "", fmt.Errorf("unsupported uri scheme %q: expected file:// or a local path", u.Scheme)
}
