package main

import (
	"github.com/dvloznov/ledger-processor/internal/config"
	infraBQ "github.com/dvloznov/ledger-processor/internal/infra/bigquery"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the BigQuery results table when it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := a.cfg, a.log
			if err := cfg.RequireProject(); err != nil {
				return err
			}
			if cfg.BigQueryDataset == "" {
				return &config.ConfigurationError{Key: "bigquery_dataset"}
			}

			sink, err := infraBQ.NewResultSink(cmd.Context(), cfg.GCPProject, cfg.BigQueryDataset)
			if err != nil {
				return err
			}
			defer sink.Close()

			if err := sink.EnsureTable(cmd.Context()); err != nil {
				return err
			}
			log.Info().
				Str("project", cfg.GCPProject).
				Str("dataset", cfg.BigQueryDataset).
				Str("table", infraBQ.ResultsTable).
				Msg("Results table ready")
			return nil
		},
	}
}
