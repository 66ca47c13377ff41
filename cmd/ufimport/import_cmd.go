package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petermich29/uf-database/internal/core"
	"github.com/petermich29/uf-database/internal/logging"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Run every import stage (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *opts)
		},
	}
}

func runImport(ctx context.Context, opts rootOptions) error {
	cfg, logger, err := loadConfig(&opts)
	if err != nil {
		return err
	}
	popts, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	errlog, err := logging.OpenErrorLog(cfg.Import.ErrorLogPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := errlog.Close(); cerr != nil {
			logger.Warn("close error log", "error", cerr)
		}
	}()

	metrics := core.NewMetrics()
	p := &core.Pipeline{
		Store:    st,
		Loader:   newLoader(cfg),
		ErrorLog: errlog,
		Logger:   logger,
		Metrics:  metrics,
		Progress: core.NewProgress(cfg.Progress.Mode, os.Stderr, logger),
		Options:  popts,
	}

	sum, runErr := p.Run(ctx)
	if sum != nil {
		sum.Render(os.Stdout)
	}
	if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logger.Warn("write metrics textfile", "path", cfg.Metrics.TextfilePath, "error", err)
	}

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		return withCode(exitFailure, fmt.Errorf("import interrupted: %w", runErr))
	case runErr != nil:
		return withCode(exitStore, runErr)
	case sum.Aborted:
		return withCode(exitFailure, errors.New("import aborted: institutions could not be imported"))
	}
	return nil
}
