// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layer defines the closed set of molecule edit operations and
// the selector algebra they resolve atoms with. Every Layer is a pure
// function of its input molecule: Apply never mutates the input, so
// resolved molecules can be cached and shared freely between stacks.
package layer

import (
	"github.com/molstack/molstack/services/workspace/geometry"
	"github.com/molstack/molstack/services/workspace/molecule"
)

// Layer is one deterministic transformation of a molecule accumulator.
// Implementations must treat the input as immutable and return a fresh
// molecule (or the input itself for identity operations).
type Layer interface {
	Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error)
	Op() string
}

// Operation discriminants, preserved in the storage encoding.
const (
	OpFill               = "fill"
	OpInsert             = "insert"
	OpAppend             = "append"
	OpSetAtom            = "set_atom"
	OpUpdateFormalCharge = "update_formal_charge"
	OpAppendAtoms        = "append_atoms"
	OpSetBond            = "set_bond"
	OpIDMap              = "id_map"
	OpGroupMap           = "group_map"
	OpSetCenter          = "set_center"
	OpDirectionAlign     = "direction_align"
	OpXYAlign            = "xy_align"
	OpTranslation        = "translation"
	OpTranslationTo      = "translation_to"
	OpRotationTo         = "rotation_to"
	OpRotation           = "rotation"
	OpIsometry           = "isometry"
	OpMirror             = "mirror"
	OpRemoveAtoms        = "remove_atoms"
	OpHide               = "hide"
	OpUnHide             = "unhide"
	OpTransparent        = "transparent"
	OpSetTitle           = "set_title"
)

// ============================================================================
// Structural operations
// ============================================================================

// Fill overlays another molecule onto the accumulator: incoming atoms
// and bonds win on conflicts, names and groups are merged.
type Fill struct {
	Data *molecule.SparseMolecule `json:"data"`
}

func (l Fill) Op() string { return OpFill }

func (l Fill) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	out.Migrate(l.Data)
	return out, nil
}

// Insert grafts another molecule at a specific index offset, shifting
// its internal indices before the overlay.
type Insert struct {
	Offset int                      `json:"offset"`
	Data   *molecule.SparseMolecule `json:"data"`
}

func (l Insert) Op() string { return OpInsert }

func (l Insert) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	out.Migrate(l.Data.Offset(l.Offset))
	return out, nil
}

// Append concatenates a labeled sub-structure onto the end of the
// accumulator. The incoming molecule's names and group names are
// namespaced with "{name}_", all of its atoms are tagged into group
// {name}, and its indices are shifted past the current end.
type Append struct {
	Name string                   `json:"name"`
	Data *molecule.SparseMolecule `json:"data"`
}

func (l Append) Op() string { return OpAppend }

func (l Append) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	incoming := l.Data.Offset(out.Len())

	ids := make(map[string]int, len(incoming.IDs))
	for name, idx := range incoming.IDs {
		ids[l.Name+"_"+name] = idx
	}
	incoming.IDs = ids
	incoming.Groups = incoming.Groups.Map(func(group string, idx int) (string, int) {
		return l.Name + "_" + group, idx
	})
	for i := 0; i < incoming.Atoms.Len(); i++ {
		if _, ok := incoming.Atoms.ReadAtom(i); ok {
			incoming.Groups.Insert(l.Name, i)
		}
	}

	out.Migrate(incoming)
	return out, nil
}

// SetAtom overwrites one resolved atom slot; a nil Atom clears it back
// to a gap. Fails when the target does not resolve.
type SetAtom struct {
	Target SelectOne      `json:"target"`
	Atom   *molecule.Atom `json:"atom"`
}

func (l SetAtom) Op() string { return OpSetAtom }

func (l SetAtom) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	if !l.Target.PutAtom(out, l.Atom) {
		return nil, selectionErr(l.Target)
	}
	return out, nil
}

// UpdateFormalCharge rewrites the charge of one resolved, present atom.
type UpdateFormalCharge struct {
	Target SelectOne `json:"target"`
	Charge float64   `json:"charge"`
}

func (l UpdateFormalCharge) Op() string { return OpUpdateFormalCharge }

func (l UpdateFormalCharge) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	atom, ok := l.Target.GetAtom(out)
	if !ok {
		return nil, selectionErr(l.Target)
	}
	atom.FormalCharge = l.Charge
	l.Target.PutAtom(out, &atom)
	return out, nil
}

// AppendAtoms extends the atom list at its current end.
type AppendAtoms struct {
	Atoms []molecule.Atom `json:"atoms"`
}

func (l AppendAtoms) Op() string { return OpAppendAtoms }

func (l AppendAtoms) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	out.Atoms.Append(l.Atoms)
	return out, nil
}

// BondEdit is one symmetric bond entry keyed by two single-atom
// selectors.
type BondEdit struct {
	A     SelectOne `json:"a"`
	B     SelectOne `json:"b"`
	Order float64   `json:"order"`
}

// SetBond writes a list of symmetric bond entries, failing on the first
// endpoint that does not resolve.
type SetBond struct {
	Bonds []BondEdit `json:"bonds"`
}

func (l SetBond) Op() string { return OpSetBond }

func (l SetBond) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	for _, edit := range l.Bonds {
		a, ok := edit.A.ToIndex(out)
		if !ok {
			return nil, selectionErr(edit.A)
		}
		b, ok := edit.B.ToIndex(out)
		if !ok {
			return nil, selectionErr(edit.B)
		}
		out.Bonds.SetOrder(a, b, edit.Order)
	}
	return out, nil
}

// IDMap records symbolic names for resolved atoms, failing if any
// target does not resolve.
type IDMap struct {
	Names map[string]SelectOne `json:"names"`
}

func (l IDMap) Op() string { return OpIDMap }

func (l IDMap) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	for name, target := range l.Names {
		idx, ok := target.ToIndex(out)
		if !ok {
			return nil, selectionErr(target)
		}
		out.IDs[name] = idx
	}
	return out, nil
}

// GroupEntry associates a group name with a multi-atom selector.
type GroupEntry struct {
	Name   string     `json:"name"`
	Select SelectMany `json:"select"`
}

// GroupMap inserts group membership pairs. Never fails: unresolvable
// selector members are dropped.
type GroupMap struct {
	Groups []GroupEntry `json:"groups"`
}

func (l GroupMap) Op() string { return OpGroupMap }

func (l GroupMap) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	for _, entry := range l.Groups {
		for idx := range entry.Select.ToIndexes(out) {
			out.Groups.Insert(entry.Name, idx)
		}
	}
	return out, nil
}

// RemoveAtoms replaces each selected atom slot with the inert
// placeholder (element 0). The list never shrinks and no index is
// renumbered, so downstream selectors and name maps stay valid; the
// placeholder is excluded from continuous-index compaction.
type RemoveAtoms struct {
	Select SelectMany `json:"select"`
}

func (l RemoveAtoms) Op() string { return OpRemoveAtoms }

func (l RemoveAtoms) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	placeholder := molecule.Atom{}
	for idx := range l.Select.ToIndexes(out) {
		if _, ok := out.Atoms.ReadAtom(idx); ok {
			p := placeholder
			out.Atoms.SetAtoms(idx, []*molecule.Atom{&p})
		}
	}
	return out, nil
}

// Hide marks each selected present atom hidden by adding the hidden
// offset to its element code. Fails if any selected atom is already in
// the hidden band.
type Hide struct {
	Select SelectMany `json:"select"`
}

func (l Hide) Op() string { return OpHide }

func (l Hide) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	return shiftElements(m, l.Select, true)
}

// UnHide reverses Hide. Fails if any selected atom is not hidden.
type UnHide struct {
	Select SelectMany `json:"select"`
}

func (l UnHide) Op() string { return OpUnHide }

func (l UnHide) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	return shiftElements(m, l.Select, false)
}

func shiftElements(m *molecule.SparseMolecule, sel SelectMany, hide bool) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	for idx := range sel.ToIndexes(out) {
		atom, ok := out.Atoms.ReadAtom(idx)
		if !ok {
			continue
		}
		if hide {
			if atom.Element >= molecule.HiddenOffset {
				return nil, &HideOverflowError{Index: idx, Element: atom.Element}
			}
			atom.Element += molecule.HiddenOffset
		} else {
			if atom.Element < molecule.HiddenOffset {
				return nil, &HideUnderflowError{Index: idx, Element: atom.Element}
			}
			atom.Element -= molecule.HiddenOffset
		}
		a := atom
		out.Atoms.SetAtoms(idx, []*molecule.Atom{&a})
	}
	return out, nil
}

// Transparent is the identity operation, used as a structural
// placeholder in pipelines.
type Transparent struct{}

func (l Transparent) Op() string { return OpTransparent }

func (l Transparent) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	return m, nil
}

// SetTitle rewrites the molecule title. When Replace is non-empty it
// substitutes the whole title; otherwise Prefix and Suffix are wrapped
// around the current one.
type SetTitle struct {
	Prefix  string `json:"prefix,omitempty"`
	Suffix  string `json:"suffix,omitempty"`
	Replace string `json:"replace,omitempty"`
}

func (l SetTitle) Op() string { return OpSetTitle }

func (l SetTitle) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	if l.Replace != "" {
		out.Title = l.Replace
	} else {
		out.Title = l.Prefix + out.Title + l.Suffix
	}
	return out, nil
}

// ============================================================================
// Geometric operations
// ============================================================================

// SetCenter translates every atom so the resolved one lands exactly at
// Center.
type SetCenter struct {
	Select SelectOne     `json:"select"`
	Center geometry.Vec3 `json:"center"`
}

func (l SetCenter) Op() string { return OpSetCenter }

func (l SetCenter) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	atom, ok := l.Select.GetAtom(out)
	if !ok {
		return nil, selectionErr(l.Select)
	}
	shift := l.Center.Sub(atom.Position)
	out.Atoms.Transform(geometry.TranslationIsometry(shift), All().ToIndexes(out))
	return out, nil
}

// DirectionAlign rotates every atom about the origin so the resolved
// atom's position vector aligns with Direction.
type DirectionAlign struct {
	Select    SelectOne     `json:"select"`
	Direction geometry.Vec3 `json:"direction"`
}

func (l DirectionAlign) Op() string { return OpDirectionAlign }

func (l DirectionAlign) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	atom, ok := l.Select.GetAtom(out)
	if !ok {
		return nil, selectionErr(l.Select)
	}
	axis, angle := geometry.AxisAngleBetween(l.Direction, atom.Position)
	out.Atoms.Transform(geometry.RotationIsometry(axis, angle), All().ToIndexes(out))
	return out, nil
}

// Translation rigidly translates the selected atoms by Vector.
type Translation struct {
	Select SelectMany    `json:"select"`
	Vector geometry.Vec3 `json:"vector"`
}

func (l Translation) Op() string { return OpTranslation }

func (l Translation) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	out.Atoms.Transform(geometry.TranslationIsometry(l.Vector), l.Select.ToIndexes(out))
	return out, nil
}

// TranslationTo translates the selected atoms so the resolved target
// atom lands at Position.
type TranslationTo struct {
	Select   SelectMany    `json:"select"`
	Target   SelectOne     `json:"target"`
	Position geometry.Vec3 `json:"position"`
}

func (l TranslationTo) Op() string { return OpTranslationTo }

func (l TranslationTo) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	atom, ok := l.Target.GetAtom(m)
	if !ok {
		return nil, selectionErr(l.Target)
	}
	return Translation{Select: l.Select, Vector: l.Position.Sub(atom.Position)}.Apply(m)
}

// Rotation rotates the selected atoms by Angle about the axis through
// Center. Angle is radians unless Degree is set.
type Rotation struct {
	Select SelectMany    `json:"select"`
	Center geometry.Vec3 `json:"center"`
	Axis   geometry.Vec3 `json:"axis"`
	Angle  float64       `json:"angle"`
	Degree bool          `json:"degree,omitempty"`
}

func (l Rotation) Op() string { return OpRotation }

func (l Rotation) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	angle := l.Angle
	if l.Degree {
		angle = geometry.Degrees(angle)
	}
	iso := geometry.TranslationIsometry(l.Center.Neg()).
		Then(geometry.RotationIsometry(l.Axis, angle)).
		Then(geometry.TranslationIsometry(l.Center))
	out := m.Clone()
	out.Atoms.Transform(iso, l.Select.ToIndexes(out))
	return out, nil
}

// RotationTo rotates the selected atoms about the resolved atom A so
// that Direction is taken onto the current A→B direction.
type RotationTo struct {
	A         SelectOne     `json:"a"`
	B         SelectOne     `json:"b"`
	Select    SelectMany    `json:"select"`
	Direction geometry.Vec3 `json:"direction"`
}

func (l RotationTo) Op() string { return OpRotationTo }

func (l RotationTo) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	a, ok := l.A.GetAtom(m)
	if !ok {
		return nil, selectionErr(l.A)
	}
	b, ok := l.B.GetAtom(m)
	if !ok {
		return nil, selectionErr(l.B)
	}
	current := b.Position.Sub(a.Position)
	axis, angle := geometry.AxisAngleBetween(current, l.Direction)
	return Rotation{
		Select: l.Select,
		Center: a.Position,
		Axis:   axis,
		Angle:  angle,
	}.Apply(m)
}

// IsometryOp applies an arbitrary rigid transform to the selected atoms.
type IsometryOp struct {
	Select   SelectMany        `json:"select"`
	Isometry geometry.Isometry `json:"isometry"`
}

func (l IsometryOp) Op() string { return OpIsometry }

func (l IsometryOp) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	out.Atoms.Transform(l.Isometry, l.Select.ToIndexes(out))
	return out, nil
}

// Mirror reflects the selected atoms across the plane through Center
// with normal Law.
type Mirror struct {
	Select SelectMany    `json:"select"`
	Center geometry.Vec3 `json:"center"`
	Law    geometry.Vec3 `json:"law"`
}

func (l Mirror) Op() string { return OpMirror }

func (l Mirror) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	out.Atoms.UpdatePositions(l.Select.ToIndexes(out), func(p geometry.Vec3) geometry.Vec3 {
		return geometry.ReflectAcross(p, l.Center, l.Law)
	})
	return out, nil
}

// XYAlign aligns the selected atoms to the frame defined by three
// resolved atoms: O is moved to the origin, X onto the +X axis, and the
// frame is then rolled about X so Y's projection onto the YZ plane lies
// on +Y.
type XYAlign struct {
	O      SelectOne  `json:"o"`
	X      SelectOne  `json:"x"`
	Y      SelectOne  `json:"y"`
	Select SelectMany `json:"select"`
}

func (l XYAlign) Op() string { return OpXYAlign }

func (l XYAlign) Apply(m *molecule.SparseMolecule) (*molecule.SparseMolecule, error) {
	out := m.Clone()
	o, ok := l.O.GetAtom(out)
	if !ok {
		return nil, selectionErr(l.O)
	}
	x, ok := l.X.GetAtom(out)
	if !ok {
		return nil, selectionErr(l.X)
	}
	y, ok := l.Y.GetAtom(out)
	if !ok {
		return nil, selectionErr(l.Y)
	}
	selection := l.Select.ToIndexes(out)

	// The frame atoms are tracked analytically so the result does not
	// depend on whether they themselves are in the selection.
	out.Atoms.Transform(geometry.TranslationIsometry(o.Position.Neg()), selection)
	xv := x.Position.Sub(o.Position)
	yv := y.Position.Sub(o.Position)

	axis, angle := geometry.AxisAngleBetween(geometry.UnitX(), xv)
	rot := geometry.AxisAngleMatrix(axis, angle)
	out.Atoms.Transform(geometry.Isometry{Rotation: rot}, selection)
	yv = rot.Apply(yv)

	proj := geometry.Vec3{Y: yv.Y, Z: yv.Z}
	axis, angle = geometry.AxisAngleBetween(geometry.UnitY(), proj)
	out.Atoms.Transform(geometry.RotationIsometry(axis, angle), selection)

	return out, nil
}
