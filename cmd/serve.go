package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
	"github.com/kandelab/stocktake/internal/shop"
	"github.com/kandelab/stocktake/internal/tagstream"
)

var (
	servePort   int
	serveListen string
	serveScope  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stocktake API",
	Long:  "Runs the reconciliation engine behind an HTTP API for handheld clients and the storefront, optionally accepting reader connections over TCP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
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

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

		if serveScope == "" {
			serveScope = cfg.Scan.Scope
		}
		if serveScope != "" {
			scope, err := model.ParseScope(serveScope)
			if err != nil {
				return err
			}
			if _, err := eng.SelectScope(ctx, scope); err != nil {
				// Clients can still select a scope over the API; log and serve.
				zap.L().Warn("initial catalog load failed", zap.Error(err))
			}
		}

		if serveListen == "" {
			serveListen = cfg.Scan.ReaderListen
		}
		if serveListen != "" {
			src := tagstream.NewTCPSource(serveListen)
			g.Go(func() error { return src.Run(ctx, eng.Ingest) })
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(&api{eng: eng, store: store, shop: shop.New(store)}),
		}

		// Graceful shutdown
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "TCP address for reader connections (default from config)")
	serveCmd.Flags().StringVar(&serveScope, "scope", "", "scope to load at startup (default from config)")
	rootCmd.AddCommand(serveCmd)
}
