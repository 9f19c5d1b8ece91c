package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
	"github.com/kandelab/stocktake/internal/report"
	"github.com/kandelab/stocktake/internal/tagstream"
)

var (
	scanScope  string
	scanListen string
	scanReplay string
	scanReport string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a stocktake session against a target scope",
	Long:  "Loads the master catalog for the scope, ingests tag reads from stdin, a TCP reader or a capture file, auto-confirms matched tags, and optionally writes an XLSX report on exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scan"); err != nil {
			return err
		}

		if scanScope == "" {
			scanScope = cfg.Scan.Scope
		}
		if scanListen == "" {
			scanListen = cfg.Scan.ReaderListen
		}
		if scanReplay == "" {
			scanReplay = cfg.Scan.ReplayFile
		}
		if scanReport == "" {
			scanReport = cfg.Scan.ReportPath
		}

		scope, err := model.ParseScope(scanScope)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		cache := catalog.NewCache(store)
		eng := reconcile.New(cache, reconcile.NewCoordinator(store, cache))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, runCtx := errgroup.WithContext(runCtx)
		g.Go(func() error {
			if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

		sum, err := eng.SelectScope(runCtx, scope)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		zap.L().Info("session started",
			zap.String("scope", string(scope)),
			zap.Int("items", sum.Items),
			zap.Int("warnings", len(sum.Warnings)),
		)

		src := scanSource()
		g.Go(func() error {
			err := src.Run(runCtx, eng.Ingest)
			// A drained replay file or closed stdin ends the session.
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

		err = g.Wait()

		state := eng.State()
		fmt.Printf("scope %s: %d confirmed, %d pending, %d missing, %d unexpected (%d reads dropped)\n",
			state.Scope,
			len(state.Result.MatchedConfirmed), len(state.Result.MatchedPending),
			len(state.Result.Missing), len(state.Result.Unexpected),
			state.DroppedReads,
		)

		if scanReport != "" {
			rep := report.Build(state.Result, cache.View())
			if saveErr := rep.Save(scanReport); saveErr != nil {
				return saveErr
			}
			fmt.Printf("report written to %s\n", scanReport)
		}
		return err
	},
}

// scanSource picks the tag input: capture file, TCP listener or stdin.
func scanSource() tagstream.Source {
	if scanReplay != "" {
		return tagstream.NewFileSource(scanReplay)
	}
	if scanListen != "" {
		return tagstream.NewTCPSource(scanListen)
	}
	return tagstream.NewReaderSource(os.Stdin, "stdin")
}

func init() {
	scanCmd.Flags().StringVar(&scanScope, "scope", "", "target scope (clinic, card_shop, apparel_shop; default from config)")
	scanCmd.Flags().StringVar(&scanListen, "listen", "", "TCP address for reader connections (default: read stdin)")
	scanCmd.Flags().StringVar(&scanReplay, "replay", "", "replay a tag capture file")
	scanCmd.Flags().StringVar(&scanReport, "report", "", "write an XLSX stocktake report to this path on exit")
	rootCmd.AddCommand(scanCmd)
}
