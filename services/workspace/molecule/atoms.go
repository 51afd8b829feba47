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

	"github.com/molstack/molstack/services/workspace/geometry"
)

// Atom is one typed point of a molecule. Value type; copied freely.
//
// Element numbers at or above HiddenOffset mark hidden atoms; element 0
// is the inert placeholder left behind by atom removal.
type Atom struct {
	Element      int           `json:"element"`
	Position     geometry.Vec3 `json:"position"`
	FormalCharge float64       `json:"formal_charge,omitempty"`
}

// IndexSet is a set of sparse atom indices, the resolved form of a
// multi-atom selector.
type IndexSet map[int]struct{}

// NewIndexSet builds an IndexSet from explicit indices.
func NewIndexSet(indices ...int) IndexSet {
	s := make(IndexSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s IndexSet) Contains(i int) bool {
	_, ok := s[i]
	return ok
}

// AtomList is an ordered, index-addressable sequence of optional atoms.
// A nil slot means no atom occupies that index — a gap, distinct from a
// removed atom (removal writes a placeholder Atom with element 0).
//
// The list only ever grows: SetAtoms and Migrate extend capacity, and
// Offset prepends empty slots. It never shrinks, so sparse indices held
// by name maps and groups stay stable across edits.
type AtomList struct {
	slots []*Atom
}

// NewAtomList returns a list of capacity empty slots.
func NewAtomList(capacity int) AtomList {
	return AtomList{slots: make([]*Atom, capacity)}
}

// AtomListOf builds a fully-populated list from concrete atoms.
func AtomListOf(atoms ...Atom) AtomList {
	slots := make([]*Atom, len(atoms))
	for i := range atoms {
		a := atoms[i]
		slots[i] = &a
	}
	return AtomList{slots: slots}
}

// Len returns the slot count, including gaps.
func (l *AtomList) Len() int {
	return len(l.slots)
}

// ExtendTo grows the list to at least capacity slots.
func (l *AtomList) ExtendTo(capacity int) {
	for len(l.slots) < capacity {
		l.slots = append(l.slots, nil)
	}
}

// Offset returns a copy with k empty slots prepended, shifting every
// existing index up by k.
func (l AtomList) Offset(k int) AtomList {
	slots := make([]*Atom, k+len(l.slots))
	for i, a := range l.slots {
		slots[k+i] = copyAtom(a)
	}
	return AtomList{slots: slots}
}

// ReadAtom returns the atom at index i. The second return is false for
// gaps and out-of-range indices alike.
func (l *AtomList) ReadAtom(i int) (Atom, bool) {
	if i < 0 || i >= len(l.slots) || l.slots[i] == nil {
		return Atom{}, false
	}
	return *l.slots[i], true
}

// SetAtoms writes a run of optional atoms starting at offset, extending
// the list as needed. A nil entry clears that slot back to a gap.
func (l *AtomList) SetAtoms(offset int, atoms []*Atom) {
	l.ExtendTo(offset + len(atoms))
	for i, a := range atoms {
		l.slots[offset+i] = copyAtom(a)
	}
}

// Append adds concrete atoms at the current end of the list.
func (l *AtomList) Append(atoms []Atom) {
	for i := range atoms {
		a := atoms[i]
		l.slots = append(l.slots, &a)
	}
}

// Transform applies a rigid isometry to every present atom whose index
// is in the selection.
func (l *AtomList) Transform(iso geometry.Isometry, selection IndexSet) {
	l.UpdatePositions(selection, iso.Apply)
}

// UpdatePositions applies fn to the position of every present atom whose
// index is in the selection. Gaps and unselected atoms are untouched.
func (l *AtomList) UpdatePositions(selection IndexSet, fn func(geometry.Vec3) geometry.Vec3) {
	for i, a := range l.slots {
		if a != nil && selection.Contains(i) {
			a.Position = fn(a.Position)
		}
	}
}

// Migrate overlays other onto l: wherever other has a present atom that
// slot wins, otherwise the current atom is kept. The list grows to the
// larger of the two lengths.
func (l *AtomList) Migrate(other *AtomList) {
	l.ExtendTo(other.Len())
	for i, a := range other.slots {
		if a != nil {
			l.slots[i] = copyAtom(a)
		}
	}
}

// Clone returns an independent deep copy.
func (l AtomList) Clone() AtomList {
	slots := make([]*Atom, len(l.slots))
	for i, a := range l.slots {
		slots[i] = copyAtom(a)
	}
	return AtomList{slots: slots}
}

// Visible returns the concrete atoms that pass element validity, in
// sparse-index order. This is the dense atom sequence used for export.
func (l *AtomList) Visible() []Atom {
	var atoms []Atom
	for _, a := range l.slots {
		if a != nil && ValidElement(a.Element) {
			atoms = append(atoms, *a)
		}
	}
	return atoms
}

// ToContinuous translates a sparse index to its continuous (dense)
// index, counting only valid atoms. Returns false when the slot itself
// is not a valid atom.
func (l *AtomList) ToContinuous(index int) (int, bool) {
	a, ok := l.ReadAtom(index)
	if !ok || !ValidElement(a.Element) {
		return 0, false
	}
	count := 0
	for i := 0; i < index; i++ {
		if b := l.slots[i]; b != nil && ValidElement(b.Element) {
			count++
		}
	}
	return count, true
}

// FromContinuous translates a continuous index back to its sparse index.
func (l *AtomList) FromContinuous(index int) (int, bool) {
	seen := 0
	for i, a := range l.slots {
		if a != nil && ValidElement(a.Element) {
			if seen == index {
				return i, true
			}
			seen++
		}
	}
	return 0, false
}

// UpdateFromContinuous returns a copy of the list with the positions of
// valid atoms replaced, in order, from a dense atom list (typically read
// back from an external calculation). Returns false when the dense list
// runs out before every valid slot is updated.
func (l AtomList) UpdateFromContinuous(dense []Atom) (AtomList, bool) {
	updated := l.Clone()
	next := 0
	for i, a := range updated.slots {
		if a == nil || !ValidElement(a.Element) {
			continue
		}
		if next >= len(dense) {
			return AtomList{}, false
		}
		d := dense[next]
		updated.slots[i] = &d
		next++
	}
	return updated, true
}

// MarshalJSON encodes the list as an array with null gaps.
func (l AtomList) MarshalJSON() ([]byte, error) {
	if l.slots == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.slots)
}

// UnmarshalJSON decodes an array with null gaps.
func (l *AtomList) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &l.slots)
}

func copyAtom(a *Atom) *Atom {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
