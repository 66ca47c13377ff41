package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/petermich29/uf-database/internal/core"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Read and validate the source files without writing to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			popts, err := pipelineOptions(cfg)
			if err != nil {
				return err
			}

			p := &core.Pipeline{
				Loader:  newLoader(cfg),
				Logger:  logger,
				Options: popts,
			}
			sum, err := p.Check(cmd.Context())
			if err != nil {
				return err
			}
			sum.Render(cmd.OutOrStdout())

			for _, res := range sum.Stages {
				if res.Err != nil {
					return errors.New("one or more sources cannot be imported")
				}
			}
			return nil
		},
	}
}
