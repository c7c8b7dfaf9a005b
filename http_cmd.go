package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbNAt-Cell/NoteTaker/config"
	"github.com/AbNAt-Cell/NoteTaker/server"
	"github.com/AbNAt-Cell/NoteTaker/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept producer audio over websocket and relay it",
	Long: `serve listens for producers on /ws. Each connection sends a JSON
config frame, then binary PCM frames, then END_OF_AUDIO.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 9090, "Port to listen on")
	viper.BindPFlag(config.KeyHTTPPort, serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		StdoutTraces: cfg.StdoutTraces,
	}, logger.WithPrefix("main"))
	if err != nil {
		logger.Fatal("telemetry", "error", err)
	}
	defer shutdownTelemetry(context.Background())

	filter, err := newFilter(cfg)
	if err != nil {
		logger.Fatal("load filter", "error", err)
	}
	publisher, cleanup, err := newPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("connect downstream", "error", err)
	}
	defer cleanup()

	srv := server.New(server.Options{
		Provider:  newProvider(cfg),
		Publisher: publisher,
		Filter:    filter,
		Worker:    cfg.Worker(),
		Language:  cfg.Language,
		Metrics:   metrics,
		Logger:    logger.WithPrefix("main"),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
}
