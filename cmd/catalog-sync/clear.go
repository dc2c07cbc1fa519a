package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every row of the local catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.ClearCatalog(cmd.Context()); err != nil {
				return fmt.Errorf("clear catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cfg.Store.Path)
			return nil
		},
	}
}
