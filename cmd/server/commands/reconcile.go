package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconcile sweep over overdue sagas and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.market.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("redispatched: %d\nfailed: %d\n", report.Redispatched, report.Failed)
			return nil
		},
	}
}
