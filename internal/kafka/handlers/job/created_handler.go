package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/metrics"
)

// enqueuer accepts job ids into the in-process job queue.
type enqueuer interface {
	Enqueue(id uuid.UUID)
}

// CreatedEvent announces a durably persisted job ready for dispatch. The
// producer must save the job record before publishing.
type CreatedEvent struct {
	JobID string `json:"job_id"`
}

// CreatedHandler turns job-created messages into queue entries.
type CreatedHandler struct {
	queue enqueuer
}

// NewCreatedHandler creates a handler feeding the given queue.
func NewCreatedHandler(q enqueuer) *CreatedHandler {
	return &CreatedHandler{queue: q}
}

// Handle decodes a job-created message and enqueues the job id.
func (h *CreatedHandler) Handle(_ context.Context, msg kafka.Message) error {
	var event CreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal job event: %w", err)
	}

	id, err := uuid.Parse(event.JobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", event.JobID, err)
	}

	h.queue.Enqueue(id)
	metrics.JobsEnqueuedTotal.Inc()
	zlog.Logger.Info().Str("job_id", id.String()).Msg("job enqueued from kafka")

	return nil
}
