package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	jobapi "github.com/aliskhannn/image-platform/internal/api/handlers/job"
	"github.com/aliskhannn/image-platform/internal/api/router"
	"github.com/aliskhannn/image-platform/internal/api/server"
	"github.com/aliskhannn/image-platform/internal/archive"
	"github.com/aliskhannn/image-platform/internal/config"
	"github.com/aliskhannn/image-platform/internal/dispatcher"
	"github.com/aliskhannn/image-platform/internal/infra/kafka/consumer"
	"github.com/aliskhannn/image-platform/internal/infra/kafka/producer"
	jobmsg "github.com/aliskhannn/image-platform/internal/kafka/handlers/job"
	"github.com/aliskhannn/image-platform/internal/queue"
	jobrepo "github.com/aliskhannn/image-platform/internal/repository/job"
	"github.com/aliskhannn/image-platform/internal/rpc/client"
	jobsvc "github.com/aliskhannn/image-platform/internal/service/job"
	"github.com/aliskhannn/image-platform/internal/storage/local"
	"github.com/aliskhannn/image-platform/internal/storage/object"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad()

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Local staging area shared with the worker.
	storage := local.NewStorage(cfg.Storage.BaseDir)

	// Initialize repository, queue, service layer, and HTTP handler.
	repo := jobrepo.NewRepository(db)
	q := queue.New()
	service := jobsvc.NewService(storage, repo, q)
	jobHandler := jobapi.NewHandler(service)

	// Optional Kafka status producer, used by the dispatcher to publish
	// terminal job states.
	var p *producer.Producer
	var n dispatcher.Notifier
	if cfg.Kafka.Enabled {
		p = producer.New(&cfg.Kafka, strategy)
		n = p
	}

	// RPC client for the worker endpoint and the dispatch loop.
	rpcClient := client.New(cfg.Worker.Endpoint, cfg.Worker.CallTimeout)
	d := dispatcher.New(q, repo, rpcClient, n, dispatcher.Config{
		RetryCount:     cfg.Worker.RetryCount,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
	})

	var dispatcherWG sync.WaitGroup
	dispatcherWG.Add(1)
	go func() {
		defer dispatcherWG.Done()
		d.Run(ctx)
	}()

	// Optional Kafka consumer bridging externally produced job-created
	// events into the queue.
	var consumerWG sync.WaitGroup
	var c *consumer.Consumer
	if cfg.Kafka.Enabled {
		createdHandler := jobmsg.NewCreatedHandler(q)
		c = consumer.New(&cfg.Kafka, strategy, createdHandler)

		consumerWG.Add(1)
		go c.Consume(ctx, &consumerWG)
	}

	// Optional archive janitor moving aged processed outputs to cold storage.
	var janitor *archive.Janitor
	if cfg.Archive.Enabled {
		processedDir, err := storage.Path("processed", "")
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to resolve processed dir")
		}

		if cfg.Storage.S3Enabled {
			store, err := object.NewStorage(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
			if err != nil {
				zlog.Logger.Fatal().Err(err).Msg("failed to connect to object storage")
			}
			janitor, err = archive.New(processedDir, cfg.Archive.MaxAge, cfg.Archive.Schedule, store)
			if err != nil {
				zlog.Logger.Fatal().Err(err).Msg("failed to create archive janitor")
			}
		} else {
			// Without an object store the janitor only deletes aged files.
			janitor, err = archive.New(processedDir, cfg.Archive.MaxAge, cfg.Archive.Schedule, nil)
			if err != nil {
				zlog.Logger.Fatal().Err(err).Msg("failed to create archive janitor")
			}
		}

		janitor.Start()
	}

	// Start HTTP server in a separate goroutine.
	r := router.Setup(jobHandler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Prometheus metrics on a separate listener.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsPort, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop accepting uploads before closing the queue: a handler still in
	// flight must be able to enqueue.
	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Wait for the Kafka consumer to finish, then close the queue so the
	// dispatcher drains buffered jobs and stops.
	consumerWG.Wait()
	q.Close()
	dispatcherWG.Wait()

	if janitor != nil {
		janitor.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown metrics server")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients.
	if p != nil {
		if err := p.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
	if c != nil {
		if err := c.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
		}
	}
}
