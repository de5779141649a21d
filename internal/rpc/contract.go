// Package rpc defines the request/response contract between the coordinator
// and a worker node, plus the error taxonomy the dispatcher uses to decide
// whether a failed call is worth retrying. The contract is transport-agnostic;
// the client and server subpackages carry it over JSON/HTTP.
package rpc

import (
	"errors"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-platform/internal/model"
)

// ResultStatus is the worker's view of a job.
type ResultStatus string

const (
	ResultUnknown    ResultStatus = "unknown"
	ResultProcessing ResultStatus = "processing"
	ResultCompleted  ResultStatus = "completed"
	ResultFailed     ResultStatus = "failed"
)

// ProcessRequest asks a worker to run a job. Every call is self-contained:
// the worker needs nothing beyond what is carried here.
type ProcessRequest struct {
	JobID          uuid.UUID         `json:"job_id"`
	SourceURI      string            `json:"source_uri"`
	DestinationURI string            `json:"destination_uri"`
	Operations     []model.Operation `json:"operations"`
}

// ProcessResponse reports the outcome of a Process call or a status lookup.
// A worker-reported failure travels here as data, never as a transport error.
type ProcessResponse struct {
	JobID        uuid.UUID    `json:"job_id"`
	Status       ResultStatus `json:"status"`
	OutputURI    string       `json:"output_uri,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// Transport-level faults. Only these are retryable by the dispatcher; any
// other error from a call is terminal for the job.
var (
	ErrEndpointUnreachable = errors.New("worker endpoint unreachable")
	ErrCallTimeout         = errors.New("rpc call timed out")
	ErrCommunication       = errors.New("rpc communication fault")
)

// IsTransient reports whether err is a transport-level fault that may succeed
// on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEndpointUnreachable) ||
		errors.Is(err, ErrCallTimeout) ||
		errors.Is(err, ErrCommunication)
}
