package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the database if needed and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.EnsureSchema(ctx); err != nil {
				return withCode(exitStore, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", st.Dialect())
			return nil
		},
	}
}
