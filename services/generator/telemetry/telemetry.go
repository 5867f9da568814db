// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry tracer provider.
//
// Metrics are Prometheus collectors registered by the observability
// package; this package only deals with traces.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names accepted in Config.TraceExporter.
const (
	ExporterNone   = "none"
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

var (
	// ErrNilContext is returned when Init receives a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls tracing.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the version string for this service.
	ServiceVersion string

	// TraceExporter selects "otlp", "stdout" or "none". Empty means none.
	TraceExporter string

	// OTLPEndpoint is the OTLP gRPC receiver, e.g. "localhost:4317".
	OTLPEndpoint string

	// OTLPInsecure dials the receiver without TLS.
	OTLPInsecure bool

	// StdoutWriter receives stdout exporter output. Nil means os.Stdout.
	StdoutWriter io.Writer
}

// Init installs a global TracerProvider and the W3C trace-context
// propagator.
//
// Description:
//
//	With TraceExporter "none" only the propagator is installed and spans
//	stay no-ops. Otherwise spans are batched to the selected exporter and
//	sampled at 100%.
//
// Inputs:
//
//	ctx - Context for exporter setup.
//	cfg - Tracing configuration.
//
// Outputs:
//
//	shutdown - Flushes and stops the provider. Always non-nil on success.
//	error - ErrNilContext, ErrUnknownExporter or an exporter error.
//
// Thread Safety: Call once at application startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.TraceExporter == "" || cfg.TraceExporter == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	exporter, closeConn, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if closeConn != nil {
			if err := closeConn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, func() error, error) {
	switch cfg.TraceExporter {
	case ExporterOTLP:
		creds := credentials.NewClientTLSFromCert(nil, "")
		if cfg.OTLPInsecure {
			creds = insecure.NewCredentials()
		}
		conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp grpc connection: %w", err)
		}
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exporter, conn.Close, nil

	case ExporterStdout:
		w := cfg.StdoutWriter
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exporter, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
}
