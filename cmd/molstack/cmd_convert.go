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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/molstack/molstack/services/workspace/ioformat"
)

// runConvert converts a molecule file between formats. XYZ and MOL2 use
// the native codecs; every other format pair shells out to obabel.
func runConvert(cmd *cobra.Command, args []string) {
	log := logger.Slog()

	var raw []byte
	var err error
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		log.Error("reading input", "error", err)
		os.Exit(1)
	}

	out, err := convertText(cmd, string(raw))
	if err != nil {
		log.Error("conversion failed", "from", convertFrom, "to", convertTo, "error", err)
		os.Exit(1)
	}

	if convertOut != "" {
		if err := os.WriteFile(convertOut, []byte(out+"\n"), 0644); err != nil {
			log.Error("writing output", "path", convertOut, "error", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(out)
}

func convertText(cmd *cobra.Command, text string) (string, error) {
	if native(convertFrom) && native(convertTo) && !convertGen3D {
		mol, err := decodeNative(convertFrom, text)
		if err != nil {
			return "", err
		}
		return encodeNative(convertTo, mol)
	}
	return ioformat.DefaultConverter.Convert(cmd.Context(), text, convertFrom, convertTo, convertGen3D)
}

func native(format string) bool {
	return format == "xyz" || format == "mol2"
}

func decodeNative(format, text string) (ioformat.BasicMolecule, error) {
	if format == "xyz" {
		return ioformat.DecodeXYZ(text)
	}
	return ioformat.DecodeMOL2(text)
}

func encodeNative(format string, mol ioformat.BasicMolecule) (string, error) {
	if format == "xyz" {
		return ioformat.EncodeXYZ(mol)
	}
	return ioformat.EncodeMOL2(mol)
}
