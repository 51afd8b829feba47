// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ioformat converts between the dense interchange shape of a
// molecule and external text formats (XYZ, MOL2), and shells out to
// Open Babel for everything else.
package ioformat

import (
	"fmt"

	"github.com/molstack/molstack/services/workspace/molecule"
)

// BasicMolecule is the dense interchange shape consumed and produced by
// the text codecs: only valid atoms, bonds renumbered to match.
type BasicMolecule struct {
	Title string          `json:"title"`
	Atoms []molecule.Atom `json:"atoms"`
	Bonds []molecule.Bond `json:"bonds"`
}

// FromSparse compacts a sparse molecule into the interchange shape.
func FromSparse(m *molecule.SparseMolecule) BasicMolecule {
	atoms, bonds := m.Continuous()
	return BasicMolecule{Title: m.Title, Atoms: atoms, Bonds: bonds}
}

// ToSparse expands the interchange shape into a fully-populated sparse
// molecule with no gaps, names, or groups.
func (b BasicMolecule) ToSparse() *molecule.SparseMolecule {
	m := molecule.NewSparseMolecule()
	m.Title = b.Title
	m.Atoms.Append(b.Atoms)
	m.Bonds.ExtendTo(len(b.Atoms))
	for _, bond := range b.Bonds {
		m.Bonds.SetOrder(bond.A, bond.B, bond.Order)
	}
	return m
}

// FormatError reports an encode or decode failure: an unsupported
// format tag, an invalid element, or a malformed record.
type FormatError struct {
	Format string
	Line   int // 1-based line of the offending record, 0 if not line-bound
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s format: line %d: %s", e.Format, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s format: %s", e.Format, e.Reason)
}

func formatErr(format string, line int, reason string, args ...any) error {
	return &FormatError{Format: format, Line: line, Reason: fmt.Sprintf(reason, args...)}
}
