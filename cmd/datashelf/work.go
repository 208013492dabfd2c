package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaibhavdavedev/datashelf/internal/app"
	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/server"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Start the scraper worker pool",
	Long:  `Starts the scraper workers with their signed job intake endpoint, the lease sweeper, and the headless renderer.`,
	RunE:  runWork,
}

func runWork(cmd *cobra.Command, args []string) error {
	if err := config.Validate(); err != nil {
		return err
	}

	common.PrintBanner(config, logger, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.NewWorker(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	application.Start()

	srv := server.New(application)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Intake server failed")
		}
	}()

	logger.Info().Msg("Workers ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	common.PrintShutdownBanner(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Intake server shutdown failed")
	}

	// App.Close drains the pool and releases leases.
	logger.Info().Msg("Workers stopped")
	return nil
}
