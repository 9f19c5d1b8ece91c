package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/tagstream"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Register and look up tagged items",
}

var itemMasterID string

var itemsRegisterCmd = &cobra.Command{
	Use:   "register <tag>...",
	Short: "Register tags against a master",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		if itemMasterID == "" {
			return eris.New("--master is required")
		}

		tags := make([]string, 0, len(args))
		for _, raw := range args {
			tag, ok := model.NormalizeTag(raw)
			if !ok {
				return eris.Errorf("invalid tag %q", raw)
			}
			tags = append(tags, tag)
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if len(tags) == 1 {
			item, err := store.CreateItem(cmd.Context(), tags[0], itemMasterID)
			if err != nil {
				return err
			}
			fmt.Printf("registered item %s for tag %s\n", item.ID, item.TagID)
			return nil
		}

		n, err := store.BulkCreateItems(cmd.Context(), itemMasterID, tags)
		if err != nil {
			return err
		}
		fmt.Printf("registered %d items\n", n)
		return nil
	},
}

var itemsImportCmd = &cobra.Command{
	Use:   "import <capture-file>",
	Short: "Register every tag in a capture file against a master",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		if itemMasterID == "" {
			return eris.New("--master is required")
		}

		seen := model.NewTagSet()
		duplicates := 0
		src := tagstream.NewFileSource(args[0])
		err := src.Run(cmd.Context(), func(raw []string) {
			for _, r := range raw {
				tag, ok := model.NormalizeTag(r)
				if !ok {
					continue
				}
				if seen.Contains(tag) {
					duplicates++
					continue
				}
				seen.Add(tag)
			}
		})
		if err != nil {
			return err
		}
		if len(seen) == 0 {
			return eris.Errorf("no valid tags in %s", args[0])
		}
		if duplicates > 0 {
			zap.L().Warn("duplicate tags in capture file",
				zap.String("file", args[0]),
				zap.Int("duplicates", duplicates),
			)
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.BulkCreateItems(cmd.Context(), itemMasterID, seen.Sorted())
		if err != nil {
			return err
		}
		fmt.Printf("registered %d items from %s\n", n, args[0])
		return nil
	},
}

var itemsFindCmd = &cobra.Command{
	Use:   "find <tag>",
	Short: "Look up an item by tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		tag, ok := model.NormalizeTag(args[0])
		if !ok {
			return eris.Errorf("invalid tag %q", args[0])
		}

		store, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		row, err := store.FindItemByTag(cmd.Context(), tag)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(row)
	},
}

func init() {
	itemsCmd.PersistentFlags().StringVar(&itemMasterID, "master", "", "master catalog entry ID")
	itemsCmd.AddCommand(itemsRegisterCmd, itemsImportCmd, itemsFindCmd)
	rootCmd.AddCommand(itemsCmd)
}
