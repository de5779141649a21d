package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/config"
	"github.com/aliskhannn/image-platform/internal/model"
)

// StatusEvent is published whenever a job reaches a terminal state, so
// downstream consumers can react without polling the job store.
type StatusEvent struct {
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"`
	OutputURL  string     `json:"output_url,omitempty"`
	Error      string     `json:"error,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Producer publishes job status events to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer for the status topic.
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.StatusTopic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// NotifyFinished serializes a terminal job state and sends it to Kafka. The
// job id is used as the message key for partitioning and ordering. Publish
// failures are logged, never escalated: events are best-effort.
func (p *Producer) NotifyFinished(ctx context.Context, j model.Job) {
	if err := p.produce(ctx, j); err != nil {
		zlog.Logger.Err(err).Str("job_id", j.ID.String()).Msg("failed to publish status event")
	}
}

func (p *Producer) produce(ctx context.Context, j model.Job) error {
	event := StatusEvent{
		JobID:      j.ID.String(),
		Status:     string(j.Status),
		OutputURL:  j.OutputURL,
		Error:      j.Error,
		FinishedAt: j.FinishedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %v", err)
	}

	key := []byte(j.ID.String())

	if err = p.Client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send status event: %v", err)
	}

	return nil
}
