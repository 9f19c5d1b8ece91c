package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/report"
)

var mastersCmd = &cobra.Command{
	Use:   "masters",
	Short: "Manage the inventory master catalog",
}

var mastersScope string

var mastersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		scope := model.TargetScope(mastersScope)
		if scope != "" && !scope.Valid() {
			return fmt.Errorf("invalid scope %q", mastersScope)
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		masters, err := store.ListMasters(cmd.Context(), scope)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCOPE\tPRODUCT CODE")
		for _, m := range masters {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Scope, m.ProductCode)
		}
		return w.Flush()
	},
}

var (
	masterName  string
	masterNotes string
	masterExtra string
	masterCode  string
	masterImage string
)

var mastersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a catalog entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		scope, err := model.ParseScope(mastersScope)
		if err != nil {
			return err
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		m, err := store.CreateMaster(cmd.Context(), model.MasterParams{
			Name:        masterName,
			Notes:       masterNotes,
			Extra:       masterExtra,
			ProductCode: masterCode,
			ImageURL:    masterImage,
			Scope:       scope,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created master %s (%s)\n", m.ID, m.Name)
		return nil
	},
}

var mastersImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import catalog entries from an XLSX master list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		scope, err := model.ParseScope(mastersScope)
		if err != nil {
			return err
		}

		params, warnings, err := report.ReadMasterList(args[0], scope)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			zap.L().Warn("skipped master list row",
				zap.Int("row", w.Index),
				zap.String("reason", w.Reason),
			)
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		created := 0
		for _, p := range params {
			if _, err := store.CreateMaster(cmd.Context(), p); err != nil {
				return err
			}
			created++
		}
		fmt.Printf("imported %d masters (%d rows skipped)\n", created, len(warnings))
		return nil
	},
}

var mastersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteMaster(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted master %s\n", args[0])
		return nil
	},
}

func init() {
	mastersCmd.PersistentFlags().StringVar(&mastersScope, "scope", "", "target scope")
	mastersCreateCmd.Flags().StringVar(&masterName, "name", "", "entry name (required)")
	mastersCreateCmd.Flags().StringVar(&masterNotes, "notes", "", "entry notes")
	mastersCreateCmd.Flags().StringVar(&masterExtra, "extra", "", "extra field")
	mastersCreateCmd.Flags().StringVar(&masterCode, "product-code", "", "product code")
	mastersCreateCmd.Flags().StringVar(&masterImage, "image-url", "", "image URL")

	mastersCmd.AddCommand(mastersListCmd, mastersCreateCmd, mastersImportCmd, mastersDeleteCmd)
	rootCmd.AddCommand(mastersCmd)
}
