// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/AleutianAI/soapgen/pkg/logging"
	"github.com/AleutianAI/soapgen/services/generator"
	"github.com/AleutianAI/soapgen/services/generator/config"
	"github.com/AleutianAI/soapgen/services/generator/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the generation HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on (overrides config)")
	return cmd
}

// runServe serves until ctx ends, then drains in-flight requests.
func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.LoggerConfig(serviceName))

	shutdownTracing, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version))
	if err != nil {
		_ = logger.Close()
		return fmt.Errorf("init tracing: %w", err)
	}

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		_ = shutdownTracing(context.Background())
		_ = logger.Close()
		return err
	}
	defer a.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := generator.NewHandlers(a.svc, logger.Slog(), cfg.Server.RequestTimeout)
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: generator.NewRouter(handlers, a.registry, serviceName),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("soapgen listening",
			"addr", srv.Addr,
			"llm_backend", cfg.LLM.Backend,
			"session_backend", cfg.Session.Backend,
			"trace_exporter", cfg.Tracing.Exporter,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), shutdownTracing(shutdownCtx))
	})
	return g.Wait()
}
