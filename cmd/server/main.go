package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docintel/internal/backend"
	"docintel/internal/config"
	"docintel/internal/history"
	"docintel/internal/logger"
	"docintel/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := backend.NewClient(cfg.Backend, log)
	store := workspace.NewStore()

	var hist *history.Store
	if cfg.App.HistoryDir != "" {
		hist, err = history.NewStore(cfg.App.HistoryDir, log)
		if err != nil {
			log.Error(serverModule, "History disabled", map[string]interface{}{"error": err})
			hist = nil
		}
	}

	srv := NewServer(cfg, log, store, client, hist)
	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     srv,
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info(serverModule, "Shutting down", nil)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		cancel()
		srv.Close()
		client.Close()
	}()

	log.Info(serverModule, "Starting docintel workspace", map[string]interface{}{
		"port":    cfg.App.Port,
		"backend": cfg.Backend.BaseURL,
		"env":     cfg.App.Environment,
	})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(serverModule, "Server error", map[string]interface{}{"error": err})
		os.Exit(1)
	}
}
