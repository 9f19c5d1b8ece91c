package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
)

var resetScope string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the inventoried flag for every item in a scope",
	Long:  "Loads the scope's item list and clears the inventoried flag on the store in one batch, bounded by the known item IDs. Run before starting a fresh stocktake.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		scope, err := model.ParseScope(resetScope)
		if err != nil {
			return err
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		cache := catalog.NewCache(store)
		if _, err := cache.LoadForScope(cmd.Context(), scope); err != nil {
			return err
		}

		coord := reconcile.NewCoordinator(store, cache)
		sum, err := coord.ResetScope(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("scope %s: reset %d of %d items\n", sum.Scope, sum.Cleared, sum.Items)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetScope, "scope", "", "target scope (required)")
	resetCmd.MarkFlagRequired("scope")
	rootCmd.AddCommand(resetCmd)
}
