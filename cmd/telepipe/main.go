// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Command telepipe runs the telemetry ingestion and fan-out pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/telepipe/telepipe/config"
	"github.com/telepipe/telepipe/internal/service"
)

func main() {
	configPath := flag.String("config", "telepipe.yaml", "path to the pipeline configuration file")
	devLogging := flag.Bool("dev", false, "use human-readable development logging")
	flag.Parse()

	logger, err := buildLogger(*devLogging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Configuration failures are the only fatal startup condition.
		logger.Fatal("configuration rejected", zap.Error(err))
	}

	svc, err := service.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble pipeline", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		logger.Error("pipeline exited with errors", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
