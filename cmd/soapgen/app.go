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
	"errors"
	"fmt"

	"github.com/AleutianAI/soapgen/pkg/logging"
	"github.com/AleutianAI/soapgen/services/generator"
	"github.com/AleutianAI/soapgen/services/generator/config"
	"github.com/AleutianAI/soapgen/services/generator/observability"
	"github.com/AleutianAI/soapgen/services/generator/policy"
	"github.com/AleutianAI/soapgen/services/generator/prompt"
	"github.com/AleutianAI/soapgen/services/generator/session"
	"github.com/AleutianAI/soapgen/services/generator/workflow"
	"github.com/AleutianAI/soapgen/services/llm"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "soapgen"

// app holds the wired components shared by serve and generate.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	store    session.Store
	svc      *generator.Service
}

// newApp builds every component from cfg. A nil client builds the backend
// named in cfg.LLM.
func newApp(cfg config.Config, logger *logging.Logger, client llm.LLMClient) (*app, error) {
	slogger := logger.Slog()

	if client == nil {
		var err error
		client, err = llm.NewClient(cfg.LLM, slogger)
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
	}

	builder, err := prompt.NewBuilder()
	if err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	var gate *policy.Engine
	if cfg.Policy.Enabled {
		gate, err = policy.NewEngine(cfg.Policy.Blocking)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}

	store, err := session.Open(cfg.Session.Backend, slogger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	engine := workflow.NewEngine(builder, client,
		workflow.WithGenerationParams(cfg.GenerationParams()),
		workflow.WithGenerationTimeout(cfg.Generation.Timeout),
		workflow.WithLogger(slogger),
		workflow.WithMetrics(metrics),
	)
	svc := generator.NewService(engine, store,
		generator.WithPolicy(gate),
		generator.WithServiceMetrics(metrics),
		generator.WithServiceLogger(slogger),
		generator.WithMaxSpecBytes(cfg.Server.MaxSpecBytes),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		svc:      svc,
	}, nil
}

// Close releases the store and wipes API keys from protected memory.
func (a *app) Close() error {
	err := a.store.Close()
	llm.PurgeSecrets()
	return errors.Join(err, a.logger.Close())
}
