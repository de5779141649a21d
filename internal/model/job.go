package model

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a job.
// Transitions follow Queued -> Processing -> {Completed, Failed};
// Completed and Failed are terminal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// OperationType names a single requested image manipulation.
type OperationType string

const (
	OperationUnknown   OperationType = ""
	OperationGrayscale OperationType = "grayscale"
	OperationResize    OperationType = "resize"
	OperationCompress  OperationType = "compress"
	OperationWatermark OperationType = "watermark"
)

// Operation describes one requested image manipulation with its parameters.
// Operations are immutable once attached to a job; their order is the
// transform application order.
type Operation struct {
	Type    OperationType `json:"type"`
	Width   int           `json:"width,omitempty"`   // resize
	Height  int           `json:"height,omitempty"`  // resize
	Quality int           `json:"quality,omitempty"` // compress, 1..100
	Text    string        `json:"text,omitempty"`    // watermark
}

// Job represents a unit of requested image work with a durable identity.
// The job store owns the authoritative record; the dispatcher holds a
// transient working copy per dispatch attempt and persists every transition.
type Job struct {
	ID             uuid.UUID   `json:"id"`
	UserID         string      `json:"user_id,omitempty"`
	Status         Status      `json:"status"`
	SourceURI      string      `json:"source_uri"`
	DestinationURI string      `json:"destination_uri"`
	OutputURL      string      `json:"output_url,omitempty"`
	Error          string      `json:"error,omitempty"`
	Operations     []Operation `json:"operations"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}

// MarkProcessing records the start of the single processing episode.
// StartedAt is set once, on the Queued -> Processing transition.
func (j *Job) MarkProcessing(now time.Time) {
	j.Status = StatusProcessing
	if j.StartedAt == nil {
		t := now
		j.StartedAt = &t
	}
}

// MarkCompleted moves the job into its terminal Completed state.
func (j *Job) MarkCompleted(now time.Time) {
	j.Status = StatusCompleted
	j.Error = ""
	if j.FinishedAt == nil {
		t := now
		j.FinishedAt = &t
	}
}

// MarkFailed moves the job into its terminal Failed state. A failed job
// always carries a non-empty, human-readable error.
func (j *Job) MarkFailed(msg string, now time.Time) {
	j.Status = StatusFailed
	if msg == "" {
		msg = "job failed"
	}
	j.Error = msg
	if j.FinishedAt == nil {
		t := now
		j.FinishedAt = &t
	}
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
