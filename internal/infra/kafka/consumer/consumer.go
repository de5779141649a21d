package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/config"
)

// createdHandler defines the interface for handling job-created messages.
type createdHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer bridges externally produced job-created events into the
// coordinator: each consumed event ends up as an id in the in-process job
// queue.
type Consumer struct {
	Client         *wbfkafka.Consumer
	createdHandler createdHandler
	cfg            *config.Kafka
	strategy       retry.Strategy
}

// New creates a new Consumer.
// - cfg: Kafka configuration struct
// - s: retry strategy for fetch/commit
// - h: handler for job-created messages
func New(cfg *config.Kafka, s retry.Strategy, h createdHandler) *Consumer {
	consumer := wbfkafka.NewConsumer(cfg.Brokers, cfg.JobsTopic, cfg.GroupID)

	return &Consumer{
		Client:         consumer,
		createdHandler: h,
		cfg:            cfg,
		strategy:       s,
	}
}

// Consume continuously fetches messages, processes them using the handler,
// and commits offsets after successful processing. It stops gracefully on
// context cancellation.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.JobsTopic).
		Msg("starting job ingress consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		// Fetch a message from Kafka with retries.
		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			// Log error and retry after a short backoff.
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		// Process message using the createdHandler.
		if err := c.createdHandler.Handle(ctx, msg); err != nil {
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("failed to handle job event")
			continue
		}

		// Commit the message with retries.
		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
		}

		zlog.Logger.Info().
			Int64("offset", msg.Offset).
			Msg("job event handled")
	}
}
