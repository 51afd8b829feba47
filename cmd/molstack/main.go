// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command molstack is the CLI for running molecule workflows and
// converting between chemical file formats.
package main

import (
	"os"

	"github.com/molstack/molstack/pkg/logging"
)

// logger is shared by all command handlers. Quiet output still goes to
// stderr, so stdout stays clean for piped conversions.
var logger = logging.New(logging.Config{
	Level:   logging.LevelInfo,
	Service: "cli",
})

func main() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
