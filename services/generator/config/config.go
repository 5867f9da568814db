// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the soapgen service configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then
// environment variables. Validate runs last.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/soapgen/pkg/logging"
	"github.com/AleutianAI/soapgen/services/generator/session"
	"github.com/AleutianAI/soapgen/services/generator/telemetry"
	"github.com/AleutianAI/soapgen/services/llm"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        llm.Config       `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Session    SessionConfig    `yaml:"session"`
	Policy     PolicyConfig     `yaml:"policy"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	Port int `yaml:"port"`

	// RequestTimeout bounds a whole Start or Resume request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxSpecBytes caps the uploaded specification document.
	MaxSpecBytes int `yaml:"max_spec_bytes"`
}

type GenerationConfig struct {
	Temperature float32 `yaml:"temperature"`

	// MaxTokens is sent only when positive.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds the single generation call of a run. A call that
	// exceeds it is recorded as a failed run.
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend"`
}

type PolicyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Blocking lists the classifications that reject a request.
	Blocking []string `yaml:"blocking"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	// Exporter is "none", "otlp" or "stdout".
	Exporter     string `yaml:"exporter"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			RequestTimeout:  10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxSpecBytes:    1 << 20,
		},
		LLM: llm.Config{
			Backend: llm.BackendOllama,
			BaseURL: llm.DefaultOllamaBaseURL,
			Model:   llm.DefaultOllamaModel,
		},
		Generation: GenerationConfig{
			Temperature: 0.1,
			Timeout:     5 * time.Minute,
		},
		Session: SessionConfig{Backend: session.BackendMemory},
		Policy: PolicyConfig{
			Enabled:  true,
			Blocking: []string{"secret"},
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			Exporter:     telemetry.ExporterNone,
			OTLPEndpoint: "localhost:4317",
			OTLPInsecure: true,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables:
//
//	LLM_BACKEND_TYPE             llm.backend
//	OLLAMA_BASE_URL              llm.base_url (ollama backend only)
//	LLM_MODEL                    llm.model
//	OTEL_EXPORTER_OTLP_ENDPOINT  tracing.otlp_endpoint, enables otlp export
//	SOAPGEN_PORT                 server.port
//
// Cloud API keys are read by the llm package when the client is built.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LLM_BACKEND_TYPE"); ok && v != "" {
		backend := strings.ToLower(v)
		if backend != c.LLM.Backend {
			// A file-level base URL and model belong to the old backend.
			c.LLM.BaseURL = ""
			c.LLM.Model = ""
		}
		c.LLM.Backend = backend
	}
	if v, ok := lookup("OLLAMA_BASE_URL"); ok && v != "" && c.isOllama() {
		c.LLM.BaseURL = v
	}
	if v, ok := lookup("LLM_MODEL"); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		c.Tracing.OTLPEndpoint = v
		if c.Tracing.Exporter == telemetry.ExporterNone {
			c.Tracing.Exporter = telemetry.ExporterOTLP
		}
	}
	if v, ok := lookup("SOAPGEN_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SOAPGEN_PORT %q is not a number", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) isOllama() bool {
	return c.LLM.Backend == "" || c.LLM.Backend == llm.BackendOllama
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxSpecBytes <= 0 {
		problems = append(problems, "server.max_spec_bytes must be positive")
	}
	if c.Server.RequestTimeout < 0 || c.Server.ShutdownTimeout < 0 || c.Generation.Timeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	// A backend timeout must fire before the request deadline to be recorded
	// as a failed run rather than a cancellation.
	if c.Server.RequestTimeout > 0 && c.Generation.Timeout > 0 && c.Generation.Timeout >= c.Server.RequestTimeout {
		problems = append(problems, fmt.Sprintf("generation.timeout %s must be shorter than server.request_timeout %s",
			c.Generation.Timeout, c.Server.RequestTimeout))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("generation.temperature %.2f outside [0, 2]", c.Generation.Temperature))
	}
	if c.Generation.MaxTokens < 0 {
		problems = append(problems, "generation.max_tokens must not be negative")
	}
	switch c.LLM.Backend {
	case "", llm.BackendOllama, llm.BackendLocal, llm.BackendOpenAI, llm.BackendAnthropic, llm.BackendClaude:
	default:
		problems = append(problems, fmt.Sprintf("llm.backend %q is not supported", c.LLM.Backend))
	}
	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Host == "" {
			problems = append(problems, fmt.Sprintf("llm.base_url %q is not an absolute URL", c.LLM.BaseURL))
		}
	}
	switch c.Session.Backend {
	case "", session.BackendMemory, session.BackendBadger:
	default:
		problems = append(problems, fmt.Sprintf("session.backend %q is not supported", c.Session.Backend))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Tracing.Exporter {
	case "", telemetry.ExporterNone, telemetry.ExporterStdout:
	case telemetry.ExporterOTLP:
		if c.Tracing.OTLPEndpoint == "" {
			problems = append(problems, "tracing.otlp_endpoint is required for the otlp exporter")
		}
	default:
		problems = append(problems, fmt.Sprintf("tracing.exporter %q is not supported", c.Tracing.Exporter))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// GenerationParams returns the sampling parameters sent on every call.
func (c Config) GenerationParams() llm.GenerationParams {
	temp := c.Generation.Temperature
	params := llm.GenerationParams{Temperature: &temp}
	if c.Generation.MaxTokens > 0 {
		n := c.Generation.MaxTokens
		params.MaxTokens = &n
	}
	return params
}

// LoggerConfig returns the logger configuration for service.
func (c Config) LoggerConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}

// TelemetryConfig returns the tracing configuration for service.
func (c Config) TelemetryConfig(service, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    service,
		ServiceVersion: version,
		TraceExporter:  c.Tracing.Exporter,
		OTLPEndpoint:   c.Tracing.OTLPEndpoint,
		OTLPInsecure:   c.Tracing.OTLPInsecure,
	}
}
