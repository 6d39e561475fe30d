package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/ledger-processor/internal/blob"
	"github.com/dvloznov/ledger-processor/internal/config"
	"github.com/dvloznov/ledger-processor/internal/ledger"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/session"
)

// CheckConfigStep fails the run when required settings are missing.
type CheckConfigStep struct {
	Config *config.Config
}

func (s *CheckConfigStep) Name() string { return "check_config" }

func (s *CheckConfigStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Config == nil {
		return &config.ConfigurationError{Key: "config", Reason: "not loaded"}
	}
	return s.Config.RequireRunSettings()
}

// CheckFilesStep verifies the session lists every required file type.
type CheckFilesStep struct{}

func (s *CheckFilesStep) Name() string { return "check_files" }

func (s *CheckFilesStep) Execute(ctx context.Context, state *PipelineState) error {
	if missing := state.Session.MissingFiles(); len(missing) > 0 {
		return &MissingFilesError{FileTypes: missing}
	}
	return nil
}

// DownloadFilesStep copies every listed file into the work directory, named
// after its file type.
type DownloadFilesStep struct {
	Blobs blob.Store
}

func (s *DownloadFilesStep) Name() string { return "download_files" }

func (s *DownloadFilesStep) Execute(ctx context.Context, state *PipelineState) error {
	fileTypes := append([]string{}, session.RequiredFiles...)
	if meta, ok := state.Session.Files[session.FileCorrections]; ok && meta.Path != "" {
		fileTypes = append(fileTypes, session.FileCorrections)
	}

	state.LocalFiles = make(map[string]string, len(fileTypes))
	for _, ft := range fileTypes {
		meta := state.Session.Files[ft]
		name := meta.Name
		if name == "" {
			name = blob.BaseName(meta.Path)
		}
		if _, err := ledger.DetectFormat(name); err != nil {
			return fmt.Errorf("%s: %w", ft, err)
		}

		dest := filepath.Join(state.WorkDir, ft+strings.ToLower(filepath.Ext(name)))
		if err := s.Blobs.Download(ctx, meta.Path, dest); err != nil {
			return fmt.Errorf("%s: %w", ft, &ledger.SourceReadError{Path: meta.Path, Err: err})
		}
		state.LocalFiles[ft] = dest
	}
	return nil
}

// LoadTablesStep reads the downloaded files, applies corrections and builds
// the ledger rows and mappings.
type LoadTablesStep struct{}

func (s *LoadTablesStep) Name() string { return "load_tables" }

func (s *LoadTablesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	tables := make(map[string]*ledger.Table, len(state.LocalFiles))
	for ft, path := range state.LocalFiles {
		t, err := ledger.LoadFile(path, ledger.AmountColumns...)
		if err != nil {
			return fmt.Errorf("%s: %w", ft, err)
		}
		t.Name = ft
		tables[ft] = t
	}

	gl := tables[session.FileGLEntries]
	if corrections, ok := tables[session.FileCorrections]; ok {
		n, err := ledger.ApplyCorrections(gl, corrections)
		if err != nil {
			return err
		}
		state.CorrectedRows = n
	}

	rows, dropped, err := ledger.BuildLedger(gl)
	if err != nil {
		return err
	}
	state.Ledger = rows
	state.DroppedRows = dropped

	if state.Mappings.CostItems, err = ledger.NewMapping(tables[session.FileCostItemMap], ledger.ColumnCostItem, ledger.ColumnBudgetArticle); err != nil {
		return err
	}
	if state.Mappings.BudgetHolders, err = ledger.NewMapping(tables[session.FileBudgetHolderMapping], ledger.ColumnBudgetArticle, ledger.ColumnBudgetHolder); err != nil {
		return err
	}
	if state.Mappings.RegionsByUnits, err = ledger.NewMapping(tables[session.FileRegionalMapping], ledger.ColumnStructuralUnit, ledger.ColumnRegion); err != nil {
		return err
	}

	log.Info().
		Int("ledger_rows", len(rows)).
		Int("dropped_rows", dropped).
		Int("corrected_rows", state.CorrectedRows).
		Msg("Ledger loaded")
	return nil
}

// JoinStep attaches budget holder and region to every ledger row.
type JoinStep struct{}

func (s *JoinStep) Name() string { return "join" }

func (s *JoinStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Joined = ledger.Join(state.Ledger, state.Mappings)
	return nil
}

// PartitionStep splits joined rows into revenue and costs.
type PartitionStep struct{}

func (s *PartitionStep) Name() string { return "partition" }

func (s *PartitionStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Partition = ledger.SplitRevenueCosts(state.Joined)
	return nil
}

// ClassifyRevenueStep labels each revenue row retail or wholesale.
type ClassifyRevenueStep struct {
	Classifier Classifier
}

func (s *ClassifyRevenueStep) Name() string { return "classify_revenue" }

func (s *ClassifyRevenueStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Classes = s.Classifier.ClassifyAll(ctx, state.Partition.Revenue)
	return nil
}

// AggregateStep computes the verified metrics.
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Metrics = ledger.Aggregate(state.Partition, state.Classes)
	return nil
}

// DetectAnomaliesStep sends the per-holder costs to the anomaly detector.
type DetectAnomaliesStep struct {
	Detector AnomalyDetector
}

func (s *DetectAnomaliesStep) Name() string { return "detect_anomalies" }

func (s *DetectAnomaliesStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Anomalies = s.Detector.Detect(ctx, state.Metrics.CostsByHolder)
	if state.Anomalies == nil {
		state.Anomalies = []string{}
	}
	return nil
}

// PersistResultStep assembles the session result and writes it once.
type PersistResultStep struct {
	Results session.ResultStore
	Now     func() time.Time
}

func (s *PersistResultStep) Name() string { return "persist_result" }

func (s *PersistResultStep) Execute(ctx context.Context, state *PipelineState) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	result := &session.Result{
		UserID:          state.Session.UserID,
		SessionID:       state.Session.ID,
		Timestamp:       now().UTC(),
		VerifiedMetrics: state.Metrics,
		AIAnalysis: session.AIAnalysis{
			Anomalies:       state.Anomalies,
			Insights:        []string{},
			Recommendations: []string{},
		},
		RevenueRowCount: len(state.Partition.Revenue),
		CostRowCount:    len(state.Partition.Costs),
		DroppedRowCount: state.DroppedRows,
	}

	id, err := s.Results.CreateResult(ctx, result)
	if err != nil {
		return fmt.Errorf("storing result: %w", err)
	}
	state.Result = result
	state.ResultID = id
	return nil
}
