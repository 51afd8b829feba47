// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package molecule

import (
	"encoding/json"
)

// Bond is one dense (continuous-index) bond record used for export.
type Bond struct {
	A     int     `json:"a"`
	B     int     `json:"b"`
	Order float64 `json:"order"`
}

// BondMatrix is a symmetric N×N matrix of optional bond orders. A nil
// cell means no bond information, which is distinct from an explicit
// order of 0 (a recorded non-bond).
//
// SetBond auto-extends the matrix when an index is out of range; this is
// the permissive convention, chosen so that layers created against a
// smaller molecule keep working after the molecule grows.
type BondMatrix struct {
	rows [][]*float64
}

// NewBondMatrix returns a capacity×capacity matrix with no bonds set.
func NewBondMatrix(capacity int) BondMatrix {
	rows := make([][]*float64, capacity)
	for i := range rows {
		rows[i] = make([]*float64, capacity)
	}
	return BondMatrix{rows: rows}
}

// Len returns the current dimension of the matrix.
func (m *BondMatrix) Len() int {
	return len(m.rows)
}

// ExtendTo grows the matrix to at least capacity×capacity.
func (m *BondMatrix) ExtendTo(capacity int) {
	if len(m.rows) >= capacity {
		return
	}
	for i := range m.rows {
		for len(m.rows[i]) < capacity {
			m.rows[i] = append(m.rows[i], nil)
		}
	}
	for len(m.rows) < capacity {
		m.rows = append(m.rows, make([]*float64, capacity))
	}
}

// Offset returns a copy with every index shifted up by k; the first k
// rows and columns are empty.
func (m BondMatrix) Offset(k int) BondMatrix {
	size := k + len(m.rows)
	out := NewBondMatrix(size)
	for i, row := range m.rows {
		for j, cell := range row {
			if cell != nil {
				v := *cell
				out.rows[k+i][k+j] = &v
			}
		}
	}
	return out
}

// ReadBond returns the bond order between a and b. The second return is
// false for unset cells and out-of-range indices.
func (m *BondMatrix) ReadBond(a, b int) (float64, bool) {
	if a < 0 || b < 0 || a >= len(m.rows) || b >= len(m.rows[a]) {
		return 0, false
	}
	cell := m.rows[a][b]
	if cell == nil {
		return 0, false
	}
	return *cell, true
}

// SetBond writes a symmetric bond entry, growing the matrix as needed.
// A nil order clears the cell.
func (m *BondMatrix) SetBond(a, b int, order *float64) {
	if a < 0 || b < 0 {
		return
	}
	m.ExtendTo(max(a, b) + 1)
	m.rows[a][b] = copyOrder(order)
	m.rows[b][a] = copyOrder(order)
}

// SetOrder is SetBond with a concrete order value.
func (m *BondMatrix) SetOrder(a, b int, order float64) {
	m.SetBond(a, b, &order)
}

// Neighbors returns the bond row for the given atom: index → order for
// every set cell. Returns nil when center is out of range.
func (m *BondMatrix) Neighbors(center int) map[int]float64 {
	if center < 0 || center >= len(m.rows) {
		return nil
	}
	out := make(map[int]float64)
	for j, cell := range m.rows[center] {
		if cell != nil {
			out[j] = *cell
		}
	}
	return out
}

// Migrate overlays other onto m: cells present in other win, cells only
// in m are kept. The matrix grows to the larger dimension.
func (m *BondMatrix) Migrate(other *BondMatrix) {
	for i := 0; i < other.Len(); i++ {
		for j := i; j < other.Len(); j++ {
			if v, ok := other.ReadBond(i, j); ok {
				m.SetOrder(i, j, v)
			}
		}
	}
}

// Clone returns an independent deep copy.
func (m BondMatrix) Clone() BondMatrix {
	out := NewBondMatrix(len(m.rows))
	for i, row := range m.rows {
		for j, cell := range row {
			out.rows[i][j] = copyOrder(cell)
		}
	}
	return out
}

// ContinuousList projects the matrix onto continuous indices: every set,
// nonzero bond whose endpoints are both valid atoms, with a <= b and
// indices renumbered densely.
func (m *BondMatrix) ContinuousList(atoms *AtomList) []Bond {
	var bonds []Bond
	for i := 0; i < len(m.rows); i++ {
		for j := i; j < len(m.rows); j++ {
			order, ok := m.ReadBond(i, j)
			if !ok || order == 0 {
				continue
			}
			a, okA := atoms.ToContinuous(i)
			b, okB := atoms.ToContinuous(j)
			if okA && okB {
				bonds = append(bonds, Bond{A: a, B: b, Order: order})
			}
		}
	}
	return bonds
}

// MarshalJSON encodes the matrix as nested arrays with null cells.
func (m BondMatrix) MarshalJSON() ([]byte, error) {
	if m.rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.rows)
}

// UnmarshalJSON decodes nested arrays with null cells.
func (m *BondMatrix) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &m.rows)
}

func copyOrder(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
