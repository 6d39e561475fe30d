package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/ledger-processor/internal/config"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/session"
	"github.com/dvloznov/ledger-processor/internal/session/inmemory"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type processOptions struct {
	sessionID   string
	userID      string
	dir         string
	files       map[string]*string
	corrections string
	output      string
}

// processOutput is printed by the process command.
type processOutput struct {
	ResultID string           `json:"resultId,omitempty"`
	Session  *session.Session `json:"session"`
	Result   *session.Result  `json:"result,omitempty"`
}

func newProcessCmd(a *app) *cobra.Command {
	opts := &processOptions{files: make(map[string]*string)}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the pipeline once over local files and print the result",
		Example: `  ledgerproc process --dir ./upload --gl gl.xlsx --cost-items cost_items.csv \
    --holders holders.csv --regions regions.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()
			if opts.output != "" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("process: %w", err)
				}
				defer f.Close()
				out = f
			}
			return a.process(ctx, opts, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.sessionID, "session", "", "session ID (generated when empty)")
	flags.StringVar(&opts.userID, "user", "local", "user ID recorded on the result")
	flags.StringVar(&opts.dir, "dir", ".", "directory holding the uploaded files")
	for _, f := range []struct{ fileType, flag, usage string }{
		{session.FileGLEntries, "gl", "general-ledger extract"},
		{session.FileCostItemMap, "cost-items", "cost item to budget article mapping"},
		{session.FileBudgetHolderMapping, "holders", "budget article to budget holder mapping"},
		{session.FileRegionalMapping, "regions", "structural unit to region mapping"},
	} {
		opts.files[f.fileType] = flags.String(f.flag, "", f.usage+" (relative to --dir)")
	}
	flags.StringVar(&opts.corrections, "corrections", "", "optional corrections table keyed by Transaction_ID")
	flags.StringVarP(&opts.output, "output", "o", "", "write the JSON result to this file instead of stdout")

	return cmd
}

func (a *app) process(ctx context.Context, opts *processOptions, out io.Writer) error {
	cfg := *a.cfg
	cfg.BlobBackend = config.BlobBackendDir
	cfg.BlobDir = opts.dir

	log := a.log
	ctx = logger.WithContext(ctx, log)

	sess := opts.session()
	sessions := inmemory.NewSessionStore()
	results := inmemory.NewResultStore()
	if err := sessions.PutSession(ctx, sess); err != nil {
		return err
	}

	var c closers
	defer c.closeAll(log)

	runner, err := newFlowRunner(ctx, &cfg)
	if err != nil {
		return err
	}
	blobs, err := newBlobStore(ctx, &cfg, &c)
	if err != nil {
		return err
	}

	p := newSessionPipeline(&cfg, runner, sessions, results, blobs)
	resultID, runErr := p.Process(ctx, sess)

	final, err := sessions.GetSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	output := processOutput{ResultID: resultID, Session: final}
	if runErr == nil {
		if output.Result, err = results.GetResult(ctx, resultID); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("process: writing result: %w", err)
	}

	if runErr != nil {
		return errors.Join(fmt.Errorf("session %s ended with status %s", final.ID, final.Status), runErr)
	}
	return nil
}

// session builds a ready session over the local files. Only flagged files
// are listed, so missing ones surface as a run error.
func (o *processOptions) session() *session.Session {
	id := o.sessionID
	if id == "" {
		id = uuid.New().String()
	}

	files := make(map[string]session.FileMeta)
	for fileType, name := range o.files {
		if name != nil && *name != "" {
			files[fileType] = session.FileMeta{Name: *name, Path: *name}
		}
	}
	if o.corrections != "" {
		files[session.FileCorrections] = session.FileMeta{Name: o.corrections, Path: o.corrections}
	}

	return &session.Session{
		ID:     id,
		UserID: o.userID,
		Status: session.StatusReadyForProcessing,
		Files:  files,
	}
}
