package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
	"github.com/kandelab/stocktake/internal/report"
)

var reportScope string

var reportCmd = &cobra.Command{
	Use:   "report <output.xlsx>",
	Short: "Export stocktake progress for a scope to an XLSX workbook",
	Long:  "Loads the scope from the store and reports each item as confirmed or missing based on its inventoried flag. Items already confirmed in a previous session count as observed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		scope, err := model.ParseScope(reportScope)
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
		view := cache.View()

		observed := model.NewTagSet()
		for tag := range view.Tags() {
			if item, ok := view.Item(tag); ok && item.Inventoried {
				observed.Add(tag)
			}
		}

		rep := report.Build(reconcile.Classify(observed, view), view)
		if err := rep.Save(args[0]); err != nil {
			return err
		}
		fmt.Printf("scope %s: %d confirmed, %d missing -> %s\n",
			scope, len(rep.Confirmed), len(rep.Missing), args[0])
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportScope, "scope", "", "target scope (required)")
	reportCmd.MarkFlagRequired("scope")
	rootCmd.AddCommand(reportCmd)
}
