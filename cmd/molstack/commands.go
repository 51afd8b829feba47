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
	"github.com/spf13/cobra"

	"github.com/molstack/molstack/pkg/logging"
)

// --- Global Command Variables ---
var (
	dataDir        string
	checkpointPath string
	debugLogging   bool

	convertFrom  string
	convertTo    string
	convertGen3D bool
	convertOut   string

	rootCmd = &cobra.Command{
		Use:   "molstack",
		Short: "A cli for layer-composed molecule workflows",
		Long: `molstack runs YAML molecule workflows against a layer store and
				converts between chemical file formats.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugLogging {
				logger = logging.New(logging.Config{
					Level:   logging.LevelDebug,
					Service: "cli",
				})
			}
		},
	}

	// --- Workflows ---
	workflowCmd = &cobra.Command{
		Use:   "workflow",
		Short: "Run and inspect molecule workflows",
	}
	workflowRunCmd = &cobra.Command{
		Use:   "run [workflow.yaml]",
		Short: "Execute a workflow file step by step",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflow, // Defined in cmd_workflow.go
	}

	// --- Utilities ---
	convertCmd = &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert a molecule file between formats (stdin when no file given)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runConvert, // Defined in cmd_convert.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowRunCmd)
	workflowRunCmd.Flags().StringVar(&dataDir, "data-dir", "",
		"Directory for the persistent layer store (empty = in-memory, no resume)")
	workflowRunCmd.Flags().StringVar(&checkpointPath, "checkpoint", "",
		"Checkpoint file path (default: <workflow file>.checkpoint.json)")

	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertFrom, "from", "xyz", "Input format (xyz, mol2, or any obabel format)")
	convertCmd.Flags().StringVar(&convertTo, "to", "mol2", "Output format (xyz, mol2, or any obabel format)")
	convertCmd.Flags().BoolVar(&convertGen3D, "gen3d", false, "Ask obabel to generate 3D coordinates")
	convertCmd.Flags().StringVarP(&convertOut, "output", "o", "", "Output file (default stdout)")
}
