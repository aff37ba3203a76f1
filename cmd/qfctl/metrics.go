package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/cuemby/qfgo/pkg/qmetrics"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve the Prometheus /metrics endpoint",
	Long: `metrics starts an HTTP server exposing every qfgo counter/gauge/
histogram registered by pkg/qmetrics. Run "qfctl run" in another process
(or integrate the same pkg/qmetrics collectors into your own binary) to
have something for it to report on.`,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().String("addr", ":9090", "Address to serve /metrics on")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	mux := http.NewServeMux()
	mux.Handle("/metrics", qmetrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	qlog.Info(fmt.Sprintf("qfctl metrics: serving on %s", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
