package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/split-market/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Store.Driver == config.StoreMemory {
				fmt.Println("memory store has no schema")
				return nil
			}
			ctx := context.Background()
			store, db, err := openSQL(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Printf("schema ready (%s)\n", cfg.Store.Driver)
			return nil
		},
	}
}
