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
	"strconv"
	"strings"

	"github.com/molstack/molstack/services/workspace/geometry"
	"github.com/molstack/molstack/services/workspace/molecule"
)

// EncodeXYZ renders the molecule as XYZ text: an atom-count line, the
// title line, then one "symbol x y z" line per atom. Bonds are not
// representable in XYZ and are dropped.
func EncodeXYZ(b BasicMolecule) (string, error) {
	lines := make([]string, 0, len(b.Atoms)+2)
	lines = append(lines, strconv.Itoa(len(b.Atoms)), b.Title)
	for i, atom := range b.Atoms {
		symbol, ok := molecule.NumberToSymbol(atom.Element)
		if !ok {
			return "", formatErr("xyz", 0, "invalid element number %d at atom %d", atom.Element, i)
		}
		lines = append(lines, symbol+" "+
			formatCoord(atom.Position.X)+" "+
			formatCoord(atom.Position.Y)+" "+
			formatCoord(atom.Position.Z))
	}
	return strings.Join(lines, "\n"), nil
}

// DecodeXYZ parses XYZ text into the interchange shape.
func DecodeXYZ(text string) (BasicMolecule, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) < 2 {
		return BasicMolecule{}, formatErr("xyz", 1, "missing atom-count and title lines")
	}
	count, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || count < 0 {
		return BasicMolecule{}, formatErr("xyz", 1, "invalid atom count %q", lines[0])
	}
	if len(lines) < 2+count {
		return BasicMolecule{}, formatErr("xyz", len(lines), "expected %d atom lines, found %d", count, len(lines)-2)
	}

	out := BasicMolecule{Title: lines[1], Atoms: make([]molecule.Atom, 0, count)}
	for i := 0; i < count; i++ {
		lineNo := 3 + i
		fields := strings.Fields(lines[2+i])
		if len(fields) < 4 {
			return BasicMolecule{}, formatErr("xyz", lineNo, "atom record needs symbol and 3 coordinates")
		}
		element, ok := molecule.SymbolToNumber(fields[0])
		if !ok {
			return BasicMolecule{}, formatErr("xyz", lineNo, "unknown element symbol %q", fields[0])
		}
		var coords [3]float64
		for j := 0; j < 3; j++ {
			coords[j], err = strconv.ParseFloat(fields[1+j], 64)
			if err != nil {
				return BasicMolecule{}, formatErr("xyz", lineNo, "invalid coordinate %q", fields[1+j])
			}
		}
		out.Atoms = append(out.Atoms, molecule.Atom{
			Element:  element,
			Position: geometry.Vec3{X: coords[0], Y: coords[1], Z: coords[2]},
		})
	}
	return out, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
