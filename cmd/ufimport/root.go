package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petermich29/uf-database/internal/config"
	"github.com/petermich29/uf-database/internal/core"
	"github.com/petermich29/uf-database/internal/logging"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

type rootOptions struct {
	profile string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "ufimport",
		Short:         "Load university hierarchy and enrollment spreadsheets into the database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "YAML import profile (overrides IMPORT_PROFILE)")

	cmd.AddCommand(newImportCmd(&opts))
	cmd.AddCommand(newSchemaCmd(&opts))
	cmd.AddCommand(newCheckCmd(&opts))
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		code := exitCode(err)
		if msg := core.FormatUserError(err); msg != "" && core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, msg)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(code)
	}
}

// loadConfig reads the configuration and sets up the process logger.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.profile)
	if err != nil {
		return nil, nil, withCode(exitConfig, err)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("configuration loaded", "config", cfg.String())
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Dialect:         cfg.Dialect(),
		URL:             cfg.Database.URL,
		CreateIfMissing: cfg.Database.CreateIfMissing,
		MaxConns:        cfg.Database.MaxConns,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, withCode(exitStore, err)
	}
	return st, nil
}

func newLoader(cfg *config.Config) *source.FileLoader {
	return &source.FileLoader{
		Files:    cfg.SourceFiles(),
		Encoding: cfg.Sources.Encoding,
		Aliases:  cfg.ColumnAliases(),
	}
}

func pipelineOptions(cfg *config.Config) (core.Options, error) {
	order, err := core.ParseDateOrder(cfg.Import.DateOrder)
	if err != nil {
		return core.Options{}, withCode(exitConfig, err)
	}
	return core.Options{BatchSize: cfg.Import.BatchSize, DateOrder: order}, nil
}
