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

// Aromatic bonds travel as order 1.5 internally and as "ar" in MOL2.
const aromaticOrder = 1.5

// EncodeMOL2 renders the molecule as a Tripos MOL2 record with
// MOLECULE, ATOM, and BOND blocks.
func EncodeMOL2(b BasicMolecule) (string, error) {
	lines := []string{
		"@<TRIPOS>MOLECULE",
		b.Title,
		strconv.Itoa(len(b.Atoms)) + " " + strconv.Itoa(len(b.Bonds)) + " 0 0 0",
		"SMALL",
		"GASTEIGER",
		"",
		"@<TRIPOS>ATOM",
	}
	for i, atom := range b.Atoms {
		symbol, ok := molecule.NumberToSymbol(atom.Element)
		if !ok {
			return "", formatErr("mol2", 0, "invalid element number %d at atom %d", atom.Element, i)
		}
		lines = append(lines, strings.Join([]string{
			strconv.Itoa(i + 1),
			symbol,
			formatCoord(atom.Position.X),
			formatCoord(atom.Position.Y),
			formatCoord(atom.Position.Z),
			symbol,
		}, " "))
	}
	lines = append(lines, "@<TRIPOS>BOND")
	for i, bond := range b.Bonds {
		order := strconv.FormatFloat(bond.Order, 'f', -1, 64)
		if bond.Order == aromaticOrder {
			order = "ar"
		}
		lines = append(lines, strings.Join([]string{
			strconv.Itoa(i + 1),
			strconv.Itoa(bond.A + 1),
			strconv.Itoa(bond.B + 1),
			order,
		}, " "))
	}
	return strings.Join(lines, "\n"), nil
}

// DecodeMOL2 parses a Tripos MOL2 record. Only the MOLECULE title and
// the ATOM and BOND blocks are read; other blocks are ignored.
func DecodeMOL2(text string) (BasicMolecule, error) {
	lines := strings.Split(text, "\n")

	moleculeBlock := blockAfter(lines, "@<TRIPOS>MOLECULE")
	if len(moleculeBlock) == 0 {
		return BasicMolecule{}, formatErr("mol2", 0, "missing @<TRIPOS>MOLECULE block")
	}
	out := BasicMolecule{Title: strings.TrimSpace(moleculeBlock[0])}

	for _, line := range blockAfter(lines, "@<TRIPOS>ATOM") {
		// atom_id name x y z type ...
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return BasicMolecule{}, formatErr("mol2", 0, "malformed atom record %q", line)
		}
		element, ok := molecule.SymbolToNumber(fields[1])
		if !ok {
			return BasicMolecule{}, formatErr("mol2", 0, "unknown element symbol %q", fields[1])
		}
		var coords [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(fields[2+j], 64)
			if err != nil {
				return BasicMolecule{}, formatErr("mol2", 0, "invalid coordinate %q", fields[2+j])
			}
			coords[j] = v
		}
		out.Atoms = append(out.Atoms, molecule.Atom{
			Element:  element,
			Position: geometry.Vec3{X: coords[0], Y: coords[1], Z: coords[2]},
		})
	}

	for _, line := range blockAfter(lines, "@<TRIPOS>BOND") {
		// bond_id origin target type
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return BasicMolecule{}, formatErr("mol2", 0, "malformed bond record %q", line)
		}
		a, errA := strconv.Atoi(fields[1])
		b, errB := strconv.Atoi(fields[2])
		if errA != nil || errB != nil || a < 1 || b < 1 {
			return BasicMolecule{}, formatErr("mol2", 0, "invalid bond endpoints %q", line)
		}
		var order float64
		switch strings.ToLower(fields[3]) {
		case "ar":
			order = aromaticOrder
		case "am":
			order = 1
		default:
			v, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return BasicMolecule{}, formatErr("mol2", 0, "invalid bond order %q", fields[3])
			}
			order = v
		}
		out.Bonds = append(out.Bonds, molecule.Bond{A: a - 1, B: b - 1, Order: order})
	}
	return out, nil
}

// blockAfter returns the non-empty lines between a section header and
// the next @<TRIPOS> header (or end of input).
func blockAfter(lines []string, header string) []string {
	var out []string
	in := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == header:
			in = true
		case in && strings.HasPrefix(trimmed, "@<TRIPOS>"):
			return out
		case in && trimmed != "" && !strings.HasPrefix(trimmed, "#"):
			out = append(out, trimmed)
		}
	}
	return out
}
