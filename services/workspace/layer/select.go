// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layer

import (
	"fmt"

	"github.com/molstack/molstack/services/workspace/molecule"
)

// SelectOne kinds.
const (
	SelectByIndex = "index"
	SelectByName  = "name"
)

// SelectOne is a symbolic reference to exactly one atom: either an
// absolute sparse index or a name registered in the molecule's ID map.
type SelectOne struct {
	Kind  string `json:"kind"`
	Index int    `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ByIndex selects the atom slot at an absolute sparse index.
func ByIndex(i int) SelectOne {
	return SelectOne{Kind: SelectByIndex, Index: i}
}

// ByName selects an atom through the molecule's name index.
func ByName(name string) SelectOne {
	return SelectOne{Kind: SelectByName, Name: name}
}

func (s SelectOne) String() string {
	switch s.Kind {
	case SelectByIndex:
		return fmt.Sprintf("index(%d)", s.Index)
	case SelectByName:
		return fmt.Sprintf("name(%q)", s.Name)
	default:
		return fmt.Sprintf("unknown(%q)", s.Kind)
	}
}

// ToIndex resolves the selector to a sparse index. An index selector
// resolves iff it is within the current atom list bounds; a name
// selector resolves iff the name is registered.
func (s SelectOne) ToIndex(m *molecule.SparseMolecule) (int, bool) {
	switch s.Kind {
	case SelectByIndex:
		if s.Index < 0 || s.Index >= m.Atoms.Len() {
			return 0, false
		}
		return s.Index, true
	case SelectByName:
		idx, ok := m.IDs[s.Name]
		return idx, ok
	default:
		return 0, false
	}
}

// GetAtom resolves the selector and reads the atom. Fails when the
// selector does not resolve or the slot is a gap.
func (s SelectOne) GetAtom(m *molecule.SparseMolecule) (molecule.Atom, bool) {
	idx, ok := s.ToIndex(m)
	if !ok {
		return molecule.Atom{}, false
	}
	return m.Atoms.ReadAtom(idx)
}

// PutAtom resolves the selector and overwrites that slot; nil clears it
// back to a gap. Fails only when the selector does not resolve.
func (s SelectOne) PutAtom(m *molecule.SparseMolecule, a *molecule.Atom) bool {
	idx, ok := s.ToIndex(m)
	if !ok {
		return false
	}
	m.Atoms.SetAtoms(idx, []*molecule.Atom{a})
	return true
}

// SelectMany kinds.
const (
	SelectAllAtoms  = "all"
	SelectByElement = "element"
	SelectByIndexes = "indexes"
	SelectByRange   = "range"
	SelectByGroup   = "group"
	SelectComplex   = "complex"
)

// SelectMany is a symbolic reference to a set of atom indices. Members
// that fail to resolve are silently dropped; a SelectMany never errors.
type SelectMany struct {
	Kind     string       `json:"kind"`
	Element  int          `json:"element,omitempty"`
	Indexes  []SelectOne  `json:"indexes,omitempty"`
	From     int          `json:"from,omitempty"`
	To       int          `json:"to,omitempty"`
	Group    string       `json:"group,omitempty"`
	Includes []SelectMany `json:"includes,omitempty"`
	Excludes []SelectMany `json:"excludes,omitempty"`
}

// All selects every slot index, gaps included.
func All() SelectMany {
	return SelectMany{Kind: SelectAllAtoms}
}

// ByElement selects every present atom with the given element code.
func ByElement(code int) SelectMany {
	return SelectMany{Kind: SelectByElement, Element: code}
}

// ByIndexes selects a set of single-atom selectors; unresolvable members
// are dropped.
func ByIndexes(targets ...SelectOne) SelectMany {
	return SelectMany{Kind: SelectByIndexes, Indexes: targets}
}

// ByRange selects the literal inclusive index range from..to.
func ByRange(from, to int) SelectMany {
	return SelectMany{Kind: SelectByRange, From: from, To: to}
}

// ByGroup selects every index associated with a group name.
func ByGroup(name string) SelectMany {
	return SelectMany{Kind: SelectByGroup, Group: name}
}

// Complex composes sub-selectors: the union of includes minus the union
// of excludes, each resolved against the same molecule snapshot.
func Complex(includes, excludes []SelectMany) SelectMany {
	return SelectMany{Kind: SelectComplex, Includes: includes, Excludes: excludes}
}

// ToIndexes resolves the selector against a molecule snapshot.
func (s SelectMany) ToIndexes(m *molecule.SparseMolecule) molecule.IndexSet {
	out := molecule.IndexSet{}
	switch s.Kind {
	case SelectAllAtoms:
		for i := 0; i < m.Atoms.Len(); i++ {
			out[i] = struct{}{}
		}
	case SelectByElement:
		for i := 0; i < m.Atoms.Len(); i++ {
			if a, ok := m.Atoms.ReadAtom(i); ok && a.Element == s.Element {
				out[i] = struct{}{}
			}
		}
	case SelectByIndexes:
		for _, target := range s.Indexes {
			if idx, ok := target.ToIndex(m); ok {
				out[idx] = struct{}{}
			}
		}
	case SelectByRange:
		for i := s.From; i <= s.To; i++ {
			out[i] = struct{}{}
		}
	case SelectByGroup:
		if m.Groups != nil {
			for _, idx := range m.Groups.Left(s.Group) {
				out[idx] = struct{}{}
			}
		}
	case SelectComplex:
		for _, inc := range s.Includes {
			for idx := range inc.ToIndexes(m) {
				out[idx] = struct{}{}
			}
		}
		for _, exc := range s.Excludes {
			for idx := range exc.ToIndexes(m) {
				delete(out, idx)
			}
		}
	}
	return out
}
