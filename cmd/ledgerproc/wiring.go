package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-processor/internal/ai"
	"github.com/dvloznov/ledger-processor/internal/blob"
	"github.com/dvloznov/ledger-processor/internal/config"
	infraBQ "github.com/dvloznov/ledger-processor/internal/infra/bigquery"
	infraFS "github.com/dvloznov/ledger-processor/internal/infra/firestore"
	"github.com/dvloznov/ledger-processor/internal/pipeline"
	"github.com/dvloznov/ledger-processor/internal/session"
	"github.com/rs/zerolog"
)

// closers releases clients in reverse creation order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) closeAll(log zerolog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}

// newFlowRunner selects the AI backend. Without an API key the flow client
// is returned anyway; runs then fail their configuration check.
func newFlowRunner(ctx context.Context, cfg *config.Config) (ai.FlowRunner, error) {
	if cfg.AIBackend == config.AIBackendGemini && cfg.AIAPIKey != "" {
		runner, err := ai.NewGeminiRunner(ctx, cfg.AIAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("newFlowRunner: %w", err)
		}
		return runner, nil
	}
	return ai.NewFlowClient(cfg.ServiceURL, cfg.AIAPIKey, cfg.AITimeout), nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, c *closers) (blob.Store, error) {
	if cfg.BlobBackend == config.BlobBackendDir {
		return blob.DirStore{Root: cfg.BlobDir}, nil
	}
	if cfg.StorageBucket == "" {
		return nil, &config.ConfigurationError{Key: "storage_bucket"}
	}
	store, err := blob.NewGCSStore(ctx, cfg.StorageBucket)
	if err != nil {
		return nil, fmt.Errorf("newBlobStore: %w", err)
	}
	c.add(store.Close)
	return store, nil
}

// newStores opens the Firestore session store and the configured result sink.
func newStores(ctx context.Context, cfg *config.Config, c *closers) (session.SessionStore, session.ResultStore, error) {
	if err := cfg.RequireProject(); err != nil {
		return nil, nil, err
	}

	fs, err := infraFS.NewStore(ctx, cfg.GCPProject)
	if err != nil {
		return nil, nil, fmt.Errorf("newStores: %w", err)
	}
	c.add(fs.Close)

	if cfg.ResultSink != config.ResultSinkBigQuery {
		return fs, fs, nil
	}

	sink, err := infraBQ.NewResultSink(ctx, cfg.GCPProject, cfg.BigQueryDataset)
	if err != nil {
		return nil, nil, fmt.Errorf("newStores: %w", err)
	}
	c.add(sink.Close)
	if err := sink.EnsureTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("newStores: %w", err)
	}
	return fs, sink, nil
}

func newSessionPipeline(cfg *config.Config, runner ai.FlowRunner, sessions session.SessionStore, results session.ResultStore, blobs blob.Store) *pipeline.SessionPipeline {
	return pipeline.NewSessionPipeline(pipeline.Dependencies{
		Config:   cfg,
		Sessions: sessions,
		Results:  results,
		Blobs:    blobs,
		Classifier: ai.NewRevenueClassifier(runner,
			ai.WithKeywords(cfg.RetailKeywords, cfg.WholesaleKeywords),
			ai.WithConcurrency(cfg.ClassifyConcurrency),
		),
		Detector: ai.NewAnomalyDetector(runner),
	})
}
