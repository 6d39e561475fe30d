package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-processor/internal/api/handlers"
	"github.com/dvloznov/ledger-processor/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/trigger"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second
	// drainTimeout bounds the wait for cancelled workers to return.
	drainTimeout = 10 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the session trigger endpoint and run the worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log := a.cfg, a.log
	ctx = logger.WithContext(ctx, log)

	var c closers
	defer c.closeAll(log)

	runner, err := newFlowRunner(ctx, cfg)
	if err != nil {
		return err
	}
	blobs, err := newBlobStore(ctx, cfg, &c)
	if err != nil {
		return err
	}
	sessions, results, err := newStores(ctx, cfg, &c)
	if err != nil {
		return err
	}
	p := newSessionPipeline(cfg, runner, sessions, results, blobs)

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore)

	// Workers outlive the signal context so in-flight runs can finish
	// during shutdown.
	workerCtx, cancelWorkers := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorkers()
	if err := queue.Start(workerCtx, trigger.NewJobHandler(p, sessions)); err != nil {
		return err
	}
	log.Info().Int("workers", cfg.WorkerCount).Msg("Job workers started")

	router := handlers.NewRouter(
		trigger.NewHandler(queue).SessionUpdated,
		handlers.NewJobsHandler(jobStore, log),
		log,
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("ai_backend", cfg.AIBackend).Str("result_sink", cfg.ResultSink).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
		cancelWorkers()
		if err := waitWorkers(queue, drainTimeout); err != nil {
			log.Error().Err(err).Msg("Job workers still running, closing clients anyway")
		}
	}

	log.Info().Msg("Server exited")
	return nil
}

// waitWorkers gives cancelled workers time to record their terminal status
// before the deferred closers release the store clients.
func waitWorkers(queue *inmemory.Queue, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return queue.Wait(ctx)
}
