// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheStatsFunc supplies a point-in-time snapshot of the resolver
// cache for the observable gauges.
type CacheStatsFunc func() (hits, misses, evictions, size int64)

// Metrics contains the pre-defined metrics for the workspace service.
//
// Description:
//
//	Provides counters, histograms, and gauges for HTTP requests, layer
//	writes, stack resolutions, and the resolver cache. All metrics use
//	the "molstack_" prefix for consistent naming.
//
// Thread Safety: safe for concurrent use after creation.
type Metrics struct {
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// LayersCreatedTotal counts layers written to workspace stores.
	LayersCreatedTotal metric.Int64Counter

	// ResolutionsTotal counts stack resolutions by status.
	ResolutionsTotal metric.Int64Counter

	// ResolutionDuration records stack resolution duration in seconds.
	ResolutionDuration metric.Float64Histogram
}

// NewMetrics registers every metric with the meter. When statsFn is
// non-nil it additionally registers observable gauges exposing the
// resolver cache's hit, miss, eviction, and size counters.
func NewMetrics(meter metric.Meter, statsFn CacheStatsFunc) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"molstack_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"molstack_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.LayersCreatedTotal, err = meter.Int64Counter(
		"molstack_layers_created_total",
		metric.WithDescription("Total layers written to workspace stores"),
		metric.WithUnit("{layer}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create layers_created_total: %w", err)
	}

	m.ResolutionsTotal, err = meter.Int64Counter(
		"molstack_resolutions_total",
		metric.WithDescription("Total stack resolutions"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolutions_total: %w", err)
	}

	m.ResolutionDuration, err = meter.Float64Histogram(
		"molstack_resolution_duration_seconds",
		metric.WithDescription("Stack resolution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.1, 1, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolution_duration: %w", err)
	}

	if statsFn != nil {
		if err := registerCacheGauges(meter, statsFn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func registerCacheGauges(meter metric.Meter, statsFn CacheStatsFunc) error {
	hits, err := meter.Int64ObservableGauge(
		"molstack_resolver_cache_hits",
		metric.WithDescription("Resolver cache hits"),
	)
	if err != nil {
		return fmt.Errorf("create cache_hits: %w", err)
	}
	misses, err := meter.Int64ObservableGauge(
		"molstack_resolver_cache_misses",
		metric.WithDescription("Resolver cache misses"),
	)
	if err != nil {
		return fmt.Errorf("create cache_misses: %w", err)
	}
	evictions, err := meter.Int64ObservableGauge(
		"molstack_resolver_cache_evictions",
		metric.WithDescription("Resolver cache evictions"),
	)
	if err != nil {
		return fmt.Errorf("create cache_evictions: %w", err)
	}
	size, err := meter.Int64ObservableGauge(
		"molstack_resolver_cache_size",
		metric.WithDescription("Resolver cache entry count"),
	)
	if err != nil {
		return fmt.Errorf("create cache_size: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		h, m, e, s := statsFn()
		o.ObserveInt64(hits, h)
		o.ObserveInt64(misses, m)
		o.ObserveInt64(evictions, e)
		o.ObserveInt64(size, s)
		return nil
	}, hits, misses, evictions, size)
	if err != nil {
		return fmt.Errorf("register cache gauge callback: %w", err)
	}
	return nil
}

// GinMiddleware records request count and duration per route. The route
// template is used rather than the raw path so per-workspace URLs do
// not explode metric cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)
		ctx := c.Request.Context()
		m.HTTPRequestsTotal.Add(ctx, 1, attrs)
		m.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// ObserveResolution records one stack resolution.
func (m *Metrics) ObserveResolution(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ResolutionsTotal.Add(ctx, 1, attrs)
	m.ResolutionDuration.Record(ctx, d.Seconds(), attrs)
}
