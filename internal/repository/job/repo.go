package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-platform/internal/model"
)

var ErrJobNotFound = errors.New("job not found")

// Repository provides CRUD operations for jobs in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a new job record. The caller must persist the job before
// enqueueing its id: the dispatcher may look it up immediately.
func (r *Repository) CreateJob(ctx context.Context, j model.Job) error {
	query := `
		INSERT INTO jobs (id, user_id, status, source_uri, destination_uri, output_url, error, operations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	opsJSON, err := json.Marshal(j.Operations)
	if err != nil {
		return fmt.Errorf("create: failed to marshal operations: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx, query,
		j.ID, nullString(j.UserID), j.Status, j.SourceURI, j.DestinationURI,
		nullString(j.OutputURL), nullString(j.Error), opsJSON, j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create: failed to save job: %w", err)
	}

	return nil
}

// GetJob retrieves a job record by id.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	query := `
		SELECT user_id, status, source_uri, destination_uri, output_url, error, operations, created_at, started_at, finished_at
		FROM jobs
		WHERE id = $1
	`

	var (
		j        model.Job
		userID   sql.NullString
		output   sql.NullString
		errText  sql.NullString
		opsBytes []byte
		started  sql.NullTime
		finished sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&userID, &j.Status, &j.SourceURI, &j.DestinationURI,
		&output, &errText, &opsBytes, &j.CreatedAt, &started, &finished,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, ErrJobNotFound
		}

		return model.Job{}, fmt.Errorf("get: failed to get job: %w", err)
	}

	if err := json.Unmarshal(opsBytes, &j.Operations); err != nil {
		return model.Job{}, fmt.Errorf("get: failed to unmarshal operations: %w", err)
	}

	j.ID = id
	j.UserID = userID.String
	j.OutputURL = output.String
	j.Error = errText.String
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		j.FinishedAt = &t
	}

	return j, nil
}

// UpdateJob persists the mutable lifecycle fields of an existing job.
func (r *Repository) UpdateJob(ctx context.Context, j model.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, output_url = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`

	res, err := r.db.ExecContext(
		ctx, query,
		j.ID, j.Status, nullString(j.OutputURL), nullString(j.Error),
		nullTime(j.StartedAt), nullTime(j.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("update: failed to update job: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrJobNotFound
	}

	return nil
}

// DeleteJob deletes a job record by id.
func (r *Repository) DeleteJob(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM jobs WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}

	if n == 0 {
		return ErrJobNotFound
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
