// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ioformat

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/molstack/molstack/pkg/validation"
)

// Converter shells out to Open Babel for format conversion and 3D
// structure generation.
type Converter struct {
	// Binary is the executable to invoke. Defaults to "obabel".
	Binary string
}

// DefaultConverter uses the obabel binary found on PATH.
var DefaultConverter = Converter{Binary: "obabel"}

// Convert pipes input text through the converter: the text is written
// to stdin, "-i{from} -o{to}" select the formats, and gen3d adds the
// --gen3d flag for 3D structure generation.
//
// The process's stdout is returned on a zero exit status; a non-zero
// exit fails with the captured stderr in the error.
func (c Converter) Convert(ctx context.Context, input, from, to string, gen3d bool) (string, error) {
	// Format names are spliced into the argument list.
	if err := validation.ValidateFormat(from); err != nil {
		return "", err
	}
	if err := validation.ValidateFormat(to); err != nil {
		return "", err
	}

	binary := c.Binary
	if binary == "" {
		binary = "obabel"
	}
	args := []string{"-i" + from, "-o" + to}
	if gen3d {
		args = append(args, "--gen3d")
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("convert %s to %s: %w: %s", from, to, err, msg)
		}
		return "", fmt.Errorf("convert %s to %s: %w", from, to, err)
	}
	return stdout.String(), nil
}
