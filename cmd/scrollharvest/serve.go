package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pevans/scrollharvest/runs"
)

var (
	servePort     string
	serveOpts     sessionOptions
	serveReadOnly bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API and accept harvest requests over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			store  *runs.Store
			runner runs.Runner
		)
		if serveReadOnly {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			store = s
		} else {
			a, err := buildApp(context.WithoutCancel(ctx), serveOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			store = a.store
			runner = a.harvester
		}

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		server := runs.NewAPIServer(store, runner)

		port := firstNonEmpty(servePort, cfg.Server.Port)
		httpServer := &http.Server{
			Addr:              ":" + port,
			Handler:           server.SetupRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting API server", "addr", httpServer.Addr, "harvests", runner != nil)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default from server.port)")
	serveCmd.Flags().StringVar(&serveOpts.snapshots, "snapshots", "", "replay saved page snapshots instead of launching a browser")
	serveCmd.Flags().StringVar(&serveOpts.today, "today", "", "date (YYYY-MM-DD) relative labels resolve against when replaying snapshots")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "serve stored runs without a browser; POST /api/v1/harvests is disabled")
	rootCmd.AddCommand(serveCmd)
}
