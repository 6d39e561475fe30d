package main

import (
	"github.com/dvloznov/ledger-processor/internal/config"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds state shared by all subcommands.
type app struct {
	envFile    string
	configFile string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: logger.New()}

	cmd := &cobra.Command{
		Use:   "ledgerproc",
		Short: "Process general-ledger upload sessions into budget results",
		Long: `ledgerproc loads a general-ledger extract and its mapping tables, joins
them, aggregates costs and revenue, and stores the verified result with
AI-generated anomaly notes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.envFile, a.configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.NewWithLevel(cfg.LogLevel, cfg.LogJSON)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment (missing file is ignored)")
	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "optional config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd(a), newProcessCmd(a), newMigrateCmd(a))
	return cmd
}
