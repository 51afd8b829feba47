// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package molecule implements the sparse molecular data model that layer
// operations transform. Atoms live in an index-stable list where a nil
// slot is a gap, bonds in a symmetric optional-valued matrix, and two
// symbolic indexes (unique names and many-to-many groups) give layers
// handles that survive insertion and reordering.
package molecule

import (
	"maps"

	"github.com/molstack/molstack/pkg/pairset"
)

// SparseMolecule is the accumulator threaded through layer application.
// Every field grows monotonically: indices, once assigned, keep their
// meaning for the lifetime of a stack.
type SparseMolecule struct {
	Title  string                        `json:"title"`
	Atoms  AtomList                      `json:"atoms"`
	Bonds  BondMatrix                    `json:"bonds"`
	IDs    map[string]int                `json:"ids"`
	Groups *pairset.PairSet[string, int] `json:"groups"`
}

// NewSparseMolecule returns an empty molecule ready for migration.
func NewSparseMolecule() *SparseMolecule {
	return &SparseMolecule{
		Atoms:  NewAtomList(0),
		Bonds:  NewBondMatrix(0),
		IDs:    make(map[string]int),
		Groups: pairset.New[string, int](),
	}
}

// Len returns the number of atom slots, including gaps.
func (m *SparseMolecule) Len() int {
	return m.Atoms.Len()
}

// normalize replaces nil maps left behind by JSON decoding or zero-value
// construction so that callers can write without checking.
func (m *SparseMolecule) normalize() {
	if m.IDs == nil {
		m.IDs = make(map[string]int)
	}
	if m.Groups == nil {
		m.Groups = pairset.New[string, int]()
	}
}

// Migrate overlays other onto m. Incoming atoms and bonds win wherever
// both sides hold a value; names and group pairs are merged with
// incoming name bindings taking precedence. The title is replaced only
// when the incoming one is non-empty.
func (m *SparseMolecule) Migrate(other *SparseMolecule) {
	m.normalize()
	m.Atoms.Migrate(&other.Atoms)
	m.Bonds.Migrate(&other.Bonds)
	maps.Copy(m.IDs, other.IDs)
	if other.Groups != nil {
		m.Groups.Extend(other.Groups)
	}
	if other.Title != "" {
		m.Title = other.Title
	}
}

// Offset returns a copy with every atom index shifted up by k across
// atoms, bonds, names, and groups.
func (m *SparseMolecule) Offset(k int) *SparseMolecule {
	m.normalize()
	ids := make(map[string]int, len(m.IDs))
	for name, idx := range m.IDs {
		ids[name] = idx + k
	}
	return &SparseMolecule{
		Title: m.Title,
		Atoms: m.Atoms.Offset(k),
		Bonds: m.Bonds.Offset(k),
		IDs:   ids,
		Groups: m.Groups.Map(func(name string, idx int) (string, int) {
			return name, idx + k
		}),
	}
}

// Clone returns an independent deep copy.
func (m *SparseMolecule) Clone() *SparseMolecule {
	m.normalize()
	return &SparseMolecule{
		Title:  m.Title,
		Atoms:  m.Atoms.Clone(),
		Bonds:  m.Bonds.Clone(),
		IDs:    maps.Clone(m.IDs),
		Groups: m.Groups.Clone(),
	}
}

// Continuous compacts the molecule to its dense external shape: only
// valid atoms, renumbered from zero, with bonds remapped accordingly.
func (m *SparseMolecule) Continuous() ([]Atom, []Bond) {
	return m.Atoms.Visible(), m.Bonds.ContinuousList(&m.Atoms)
}

// UpdateFromContinuous writes a dense atom list produced by Continuous
// back onto the sparse slots it came from. It fails (returns false) when
// the dense list's length does not match the current valid-atom count.
func (m *SparseMolecule) UpdateFromContinuous(dense []Atom) bool {
	updated, ok := m.Atoms.UpdateFromContinuous(dense)
	if !ok {
		return false
	}
	m.Atoms = updated
	return true
}
