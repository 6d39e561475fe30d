// Package pipeline runs one upload session from raw files to a persisted
// result, tracking the session status along the way.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-processor/internal/ledger"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/session"
)

// PipelineStep represents a single step in the session pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps. It is
// scoped to one run and discarded afterwards.
type PipelineState struct {
	Session *session.Session
	WorkDir string

	// LocalFiles maps file type to the downloaded path in WorkDir.
	LocalFiles map[string]string

	Ledger        []ledger.LedgerRow
	DroppedRows   int
	CorrectedRows int
	Mappings      ledger.Mappings
	Joined        []ledger.JoinedRow
	Partition     ledger.Partition
	Classes       []ledger.RevenueClass
	Metrics       ledger.AggregateResult
	Anomalies     []string

	Result   *session.Result
	ResultID string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) not started: %w", i+1, step.Name(), err)
		}

		start := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}

		log.Debug().
			Str(logger.FieldStep, step.Name()).
			Dur("duration", time.Since(start)).
			Msg("Pipeline step completed")
	}
	return nil
}
