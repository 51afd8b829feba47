// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command molstackd starts the molstack workspace API server.
//
// The server hosts named workspaces, each a persistent store of molecule
// layers plus a list of stacks (layer paths) resolved on demand.
//
// Usage:
//
//	go run ./cmd/molstackd
//	go run ./cmd/molstackd -port 9090 -data-dir /var/lib/molstack
//
// With in-memory workspaces (no persistence):
//
//	go run ./cmd/molstackd -data-dir ""
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/health
//
//	# Create a workspace
//	curl -X POST http://localhost:8080/v1/workspace \
//	  -H "Content-Type: application/json" \
//	  -d '{"name": "demo"}'
//
//	# Create layers in it
//	curl -X POST http://localhost:8080/v1/workspace/demo/layers \
//	  -H "Content-Type: application/json" \
//	  -d '[{"op": "translation", "payload": {"x": 1, "y": 0, "z": 0}}]'
//
//	# Prometheus metrics
//	curl http://localhost:8080/metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/molstack/molstack/pkg/logging"
	"github.com/molstack/molstack/services/workspace"
	"github.com/molstack/molstack/services/workspace/telemetry"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	dataDir := flag.String("data-dir", "", "Directory for per-workspace layer stores (empty = in-memory)")
	cacheSize := flag.Int("cache-size", 0, "Resolver cache capacity per workspace (0 = default)")
	exporter := flag.String("metrics-exporter", "", "Metric exporter: prometheus or none (default from OTEL_METRICS_EXPORTER)")
	logDir := flag.String("log-dir", "", "Directory for JSON log files (empty = stderr only)")
	flag.Parse()

	level := logging.LevelInfo
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  *logDir,
		Service: "workspaced",
	})
	defer logger.Close()
	log := logger.Slog()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	telCfg := telemetry.DefaultConfig()
	if *exporter != "" {
		telCfg.MetricExporter = *exporter
	}
	telShutdown, err := telemetry.Init(telCfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	// The stats callback captures svc, which is created after the
	// metrics. Gauges read zeros until it is assigned below.
	var svc *workspace.Service
	statsFn := func() (hits, misses, evictions, size int64) {
		if svc == nil {
			return 0, 0, 0, 0
		}
		return svc.CacheStats()
	}

	var metrics *telemetry.Metrics
	if telCfg.MetricExporter != "none" {
		metrics, err = telemetry.NewMetrics(otel.Meter("molstack/workspace"), statsFn)
		if err != nil {
			log.Error("failed to create metrics", "error", err)
			os.Exit(1)
		}
	}

	svc = workspace.NewService(workspace.Config{
		DataDir:   *dataDir,
		CacheSize: *cacheSize,
	}, log, metrics)

	router := gin.New()
	router.Use(gin.Recovery())
	svc.SetupRoutes(router)

	printBanner(*port, *dataDir)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting workspace server", "address", srv.Addr, "data_dir", *dataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down workspace server")
	case err := <-errCh:
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := telShutdown(shutdownCtx); err != nil {
		log.Error("telemetry shutdown failed", "error", err)
	}
	if err := svc.Close(); err != nil {
		log.Error("closing workspaces failed", "error", err)
	}
}

func printBanner(port int, dataDir string) {
	storage := "in-memory (no persistence)"
	if dataDir != "" {
		storage = dataDir
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                    MOLSTACK WORKSPACE SERVER                      ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Layer-composed molecule workspaces over HTTP.                    ║
║  Storage: %-56s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/health                           │  ║
║  │                                                             │  ║
║  │ # Create a workspace                                        │  ║
║  │ curl -X POST http://localhost:%d/v1/workspace \           │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"name": "demo"}'                                     │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Workspaces: POST /v1/workspace, DELETE /v1/workspace/:ws     ║
║  ├── Layers: create, read, list, remove_unused, atom/bond edits   ║
║  ├── Stacks: create, resolve, clone, slice, add                   ║
║  └── Export: GET /v1/workspace/:ws/export                         ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, storage, port, port)
}
