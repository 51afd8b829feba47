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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/molstack/molstack/services/workspace/storage"
	badgerstore "github.com/molstack/molstack/services/workspace/storage/badger"
	"github.com/molstack/molstack/services/workspace/storage/memstore"
	"github.com/molstack/molstack/services/workspace/workflow"
)

// runWorkflow executes a workflow YAML file against a layer store.
//
// With --data-dir the layers persist in a badger store and interrupted
// runs resume from the checkpoint file. Without it the store lives in
// memory and checkpointing is disabled, since a checkpoint references
// layer ids that would not survive the process.
func runWorkflow(cmd *cobra.Command, args []string) {
	log := logger.Slog()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		log.Error("reading workflow file", "path", args[0], "error", err)
		os.Exit(1)
	}
	input, err := workflow.ParseInput(raw)
	if err != nil {
		log.Error("parsing workflow file", "path", args[0], "error", err)
		os.Exit(1)
	}

	var store storage.Store
	cpPath := checkpointPath
	if dataDir == "" {
		if cpPath != "" {
			log.Warn("checkpointing disabled: resume needs a persistent store, pass --data-dir")
		}
		cpPath = ""
		store = memstore.New()
	} else {
		cfg := badgerstore.DefaultConfig()
		cfg.Path = dataDir
		cfg.Logger = log.With("store", dataDir)
		badger, err := badgerstore.Open(cfg)
		if err != nil {
			log.Error("opening layer store", "path", dataDir, "error", err)
			os.Exit(1)
		}
		defer badger.Close()
		store = badger
		if cpPath == "" {
			cpPath = args[0] + ".checkpoint.json"
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := workflow.NewEngine(store, log, cpPath)
	data, err := engine.Run(ctx, input)
	if err != nil {
		log.Error("workflow failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("workflow finished: %d stacks\n", len(data.Current))
	for _, title := range data.Current.Titles() {
		fmt.Printf("  %-30s %d layers\n", title, len(data.Current[title]))
	}
}
