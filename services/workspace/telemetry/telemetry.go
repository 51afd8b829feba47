// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the workspace service's metrics to an
// OpenTelemetry meter backed by a Prometheus exporter.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ErrUnknownExporter is returned for an unrecognized exporter name.
var ErrUnknownExporter = errors.New("unknown metric exporter")

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies this service in metrics.
	ServiceName string `json:"service_name"`

	// ServiceVersion is the version string for this service.
	ServiceVersion string `json:"service_version"`

	// Environment identifies the deployment environment.
	Environment string `json:"environment"`

	// MetricExporter selects the metric exporter: "prometheus" or "none".
	MetricExporter string `json:"metric_exporter"`
}

// DefaultConfig returns opinionated defaults. OTEL_METRICS_EXPORTER and
// MOLSTACK_ENV override the exporter and environment respectively.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "molstack",
		ServiceVersion: "1.0.0",
		Environment:    getEnvOr("MOLSTACK_ENV", "development"),
		MetricExporter: getEnvOr("OTEL_METRICS_EXPORTER", "prometheus"),
	}
}

// Init sets up the global MeterProvider per cfg. After a successful
// return, otel.Meter() can be used throughout the application. The
// returned shutdown function must be called on exit.
//
// Thread Safety: call once at application startup.
func Init(cfg Config) (shutdown func(context.Context) error, err error) {
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	switch cfg.MetricExporter {
	case "none":
		return func(context.Context) error { return nil }, nil
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		// The exporter registers as a collector with the default
		// prometheus registry, so promhttp.Handler() serves our metrics.
		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusHandlerMu.Unlock()

		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		)
		otel.SetMeterProvider(mp)
		return mp.Shutdown, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the HTTP handler for the /metrics endpoint, or
// nil when the Prometheus exporter is not active.
//
// Thread Safety: safe for concurrent use.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
