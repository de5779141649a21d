// Package dispatcher drains the job queue and drives each job through a
// single processing episode: load from the store, call the worker over RPC
// with bounded retries and exponential backoff, persist the terminal state.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-platform/internal/metrics"
	"github.com/aliskhannn/image-platform/internal/model"
	"github.com/aliskhannn/image-platform/internal/queue"
	"github.com/aliskhannn/image-platform/internal/repository/job"
	"github.com/aliskhannn/image-platform/internal/rpc"
)

const (
	minBaseDelay = 50 * time.Millisecond
	maxDelay     = 5 * time.Second
)

// jobStore is the durable job record store. Every field mutation requires an
// explicit Update before the transition counts as durable.
type jobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	UpdateJob(ctx context.Context, j model.Job) error
}

// rpcClient delivers a job to the worker endpoint.
type rpcClient interface {
	Process(ctx context.Context, req rpc.ProcessRequest) (rpc.ProcessResponse, error)
}

// Notifier publishes terminal job states to interested consumers.
type Notifier interface {
	NotifyFinished(ctx context.Context, j model.Job)
}

// Config holds the dispatch policy, read once at startup.
type Config struct {
	RetryCount     int           // maximum delivery attempts per job
	RetryBaseDelay time.Duration // backoff base, floored at 50ms
}

// Dispatcher runs the coordinator's dispatch loop. One job is in flight at a
// time: job N+1 is not dequeued until job N's attempt sequence completes.
type Dispatcher struct {
	queue    *queue.Queue
	store    jobStore
	client   rpcClient
	notifier Notifier
	cfg      Config
}

// New creates a Dispatcher. The notifier may be nil.
func New(q *queue.Queue, store jobStore, client rpcClient, n Notifier, cfg Config) *Dispatcher {
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 3
	}
	if cfg.RetryBaseDelay < minBaseDelay {
		cfg.RetryBaseDelay = minBaseDelay
	}
	return &Dispatcher{queue: q, store: store, client: client, notifier: n, cfg: cfg}
}

// Run drains the queue until ctx is canceled or the queue is closed. One
// job's failure never terminates the loop: every dispatch is contained to
// its own iteration.
func (d *Dispatcher) Run(ctx context.Context) {
	zlog.Logger.Info().
		Int("retry_count", d.cfg.RetryCount).
		Dur("retry_base_delay", d.cfg.RetryBaseDelay).
		Msg("starting dispatcher")

	for {
		id, ok := d.queue.Dequeue(ctx)
		if !ok {
			zlog.Logger.Info().Msg("job queue drained, stopping dispatcher")
			return
		}

		d.dispatch(ctx, id)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, id uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().
				Str("job_id", id.String()).
				Interface("panic", r).
				Msg("dispatch panicked")
		}
	}()

	j, err := d.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			// The job may have been deleted concurrently; recoverable.
			zlog.Logger.Warn().Str("job_id", id.String()).Msg("job not found in store, skipping")
			return
		}
		zlog.Logger.Err(err).Str("job_id", id.String()).Msg("failed to load job")
		return
	}

	// Persist Processing before the first RPC attempt so status queries
	// reflect it immediately.
	j.MarkProcessing(time.Now().UTC())
	if err := d.save(ctx, j); err != nil {
		return
	}

	req := rpc.ProcessRequest{
		JobID:          j.ID,
		SourceURI:      j.SourceURI,
		DestinationURI: j.DestinationURI,
		Operations:     j.Operations,
	}

	var lastTransportErr error

	for attempt := 1; attempt <= d.cfg.RetryCount; attempt++ {
		res, err := d.client.Process(ctx, req)
		if err == nil {
			if res.Status == rpc.ResultCompleted {
				metrics.DispatchAttemptsTotal.WithLabelValues("success").Inc()
				j.MarkCompleted(time.Now().UTC())
			} else {
				// Worker-reported processing errors are terminal; only
				// transport faults are retried.
				metrics.DispatchAttemptsTotal.WithLabelValues("logical_failure").Inc()
				msg := res.ErrorMessage
				if msg == "" {
					msg = "worker failed"
				}
				j.MarkFailed(msg, time.Now().UTC())
			}
			d.finish(ctx, j)
			return
		}

		if !rpc.IsTransient(err) {
			metrics.DispatchAttemptsTotal.WithLabelValues("error").Inc()
			zlog.Logger.Err(err).Str("job_id", j.ID.String()).Msg("dispatch failed")
			j.MarkFailed(err.Error(), time.Now().UTC())
			d.finish(ctx, j)
			return
		}

		metrics.DispatchAttemptsTotal.WithLabelValues("transport_error").Inc()
		lastTransportErr = err
		zlog.Logger.Warn().
			Err(err).
			Str("job_id", j.ID.String()).
			Int("attempt", attempt).
			Msg("worker call failed")

		if attempt < d.cfg.RetryCount {
			if !d.sleep(ctx, backoffDelay(attempt, d.cfg.RetryBaseDelay)) {
				// Canceled mid-backoff; leave the job as-is for external
				// tooling to flag.
				return
			}
		}
	}

	zlog.Logger.Err(lastTransportErr).
		Str("job_id", j.ID.String()).
		Int("attempts", d.cfg.RetryCount).
		Msg("worker unreachable, giving up")

	j.MarkFailed("worker is not reachable or timed out", time.Now().UTC())
	d.finish(ctx, j)
}

func (d *Dispatcher) finish(ctx context.Context, j model.Job) {
	if err := d.save(ctx, j); err != nil {
		return
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(j.Status)).Inc()

	if d.notifier != nil {
		d.notifier.NotifyFinished(ctx, j)
	}
}

func (d *Dispatcher) save(ctx context.Context, j model.Job) error {
	if err := d.store.UpdateJob(ctx, j); err != nil {
		zlog.Logger.Err(err).Str("job_id", j.ID.String()).Msg("failed to persist job")
		return err
	}
	return nil
}

// sleep waits for the backoff delay, aborting early when ctx is canceled.
func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffDelay computes the delay before retrying attempt+1:
// min(5000ms, base * 2^(attempt-1)) with base floored at 50ms.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if base < minBaseDelay {
		base = minBaseDelay
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
