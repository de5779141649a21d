package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-platform/internal/metrics"
	"github.com/aliskhannn/image-platform/internal/model"
)

var (
	ErrJobNotCompleted = errors.New("job is not completed")
	ErrOutputMissing   = errors.New("output file missing")
)

const (
	uploadsSubdir   = "uploads"
	processedSubdir = "processed"
)

// fileStorage is the staging area shared with the worker.
type fileStorage interface {
	Save(subdir, filename string, src io.Reader) (string, error)
	Path(subdir, filename string) (string, error)
	Open(subdir, filename string) (io.ReadCloser, error)
}

// repository is the durable job record store.
type repository interface {
	CreateJob(ctx context.Context, j model.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
}

// enqueuer accepts job ids for dispatch.
type enqueuer interface {
	Enqueue(id uuid.UUID)
}

// Service provides the coordinator's business logic for jobs: it stages the
// uploaded image, persists the job record, and only then enqueues the id,
// since the dispatcher may look the job up immediately after.
type Service struct {
	storage fileStorage
	repo    repository
	queue   enqueuer
}

// NewService creates a Service.
func NewService(fs fileStorage, r repository, q enqueuer) *Service {
	return &Service{storage: fs, repo: r, queue: q}
}

// CreateJob stages the upload, persists a Queued job, and enqueues its id.
func (s *Service) CreateJob(ctx context.Context, userID, filename string, file io.Reader, ops []model.Operation) (model.Job, error) {
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(filename))
	stagedName := id.String() + ext

	sourcePath, err := s.storage.Save(uploadsSubdir, stagedName, file)
	if err != nil {
		return model.Job{}, fmt.Errorf("create job: failed to stage upload: %w", err)
	}

	destinationPath, err := s.storage.Path(processedSubdir, stagedName)
	if err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}

	j := model.Job{
		ID:             id,
		UserID:         userID,
		Status:         model.StatusQueued,
		SourceURI:      fileURI(sourcePath),
		DestinationURI: fileURI(destinationPath),
		OutputURL:      "/" + processedSubdir + "/" + stagedName,
		Operations:     ops,
		CreatedAt:      time.Now().UTC(),
	}

	// The job must be durable before its id is visible to the dispatcher.
	if err := s.repo.CreateJob(ctx, j); err != nil {
		return model.Job{}, fmt.Errorf("create job: failed to save job: %w", err)
	}

	s.queue.Enqueue(j.ID)
	metrics.JobsEnqueuedTotal.Inc()

	return j, nil
}

// GetJob returns the current job record.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	return s.repo.GetJob(ctx, id)
}

// OpenOutput opens the processed image of a completed job for reading.
func (s *Service) OpenOutput(ctx context.Context, id uuid.UUID) (model.Job, io.ReadCloser, error) {
	j, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return model.Job{}, nil, err
	}

	if j.Status != model.StatusCompleted {
		return j, nil, ErrJobNotCompleted
	}

	f, err := s.storage.Open(processedSubdir, filepath.Base(j.OutputURL))
	if err != nil {
		return j, nil, ErrOutputMissing
	}

	return j, f, nil
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}
