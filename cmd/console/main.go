package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docintel/internal/backend"
	"docintel/internal/config"
	"docintel/internal/logger"
	"docintel/internal/workspace"

	"github.com/fatih/color"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		color.Red("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		color.Red("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// Logs go to the file only so they do not interleave with the transcript.
	log := logger.NewFileLogger(cfg.App.LogFilePath)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := backend.NewClient(cfg.Backend, log)
	defer client.Close()

	console := NewConsole(workspace.NewStore(), client, cfg.Upload.MaxBytes, os.Stdout, log)
	defer console.Close()

	color.Cyan("docintel console  (backend %s, :help for commands)", cfg.Backend.BaseURL)
	if len(os.Args) > 1 {
		console.Exec(ctx, ":upload "+os.Args[1])
	}

	if err := console.Run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
		os.Exit(1)
	}
}
