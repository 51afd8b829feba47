// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molstack/molstack/services/workspace/geometry"
	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/molecule"
	"github.com/molstack/molstack/services/workspace/storage/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scaffold is a two-atom carbon-hydrogen fragment on the X axis.
func scaffold() *molecule.SparseMolecule {
	m := molecule.NewSparseMolecule()
	m.Title = "scaffold"
	m.Atoms = molecule.AtomListOf(
		molecule.Atom{Element: 6},
		molecule.Atom{Element: 1, Position: geometry.Vec3{X: 1}},
	)
	m.Bonds = molecule.NewBondMatrix(2)
	m.Bonds.SetOrder(0, 1, 1)
	return m
}

func newTestData(base *molecule.SparseMolecule) *Data {
	return NewData(base, memstore.New(), discardLogger())
}

func TestParseInput(t *testing.T) {
	in, err := ParseInput([]byte(`
base:
  title: water
  atoms:
    - element: 8
      position: {x: 0, y: 0, z: 0}
steps:
  - name: shift
    run:
      append_layers:
        - op: translation
          payload:
            select: {kind: all}
            vector: {x: 1, y: 0, z: 0}
`))
	require.NoError(t, err)
	assert.Equal(t, "water", in.Base.Title)
	assert.Equal(t, 1, in.Base.Len())
	require.Len(t, in.Steps, 1)
	assert.Equal(t, "shift", in.Steps[0].Name)
	require.Len(t, in.Steps[0].Run.AppendLayers, 1)
	assert.Equal(t, layer.OpTranslation, in.Steps[0].Run.AppendLayers[0].Op())
}

func TestParseInputRejectsUnknownOp(t *testing.T) {
	_, err := ParseInput([]byte(`
steps:
  - run:
      append_layers:
        - op: explode
`))
	assert.Error(t, err)
}

func TestRunnerSpecValidation(t *testing.T) {
	_, err := RunnerSpec{}.runner()
	assert.Error(t, err)

	_, err = RunnerSpec{
		Rename:  &Rename{Prefix: "a"},
		Command: &Command{Command: "true"},
	}.runner()
	assert.Error(t, err)
}

func TestAppendLayersExtendsEveryStack(t *testing.T) {
	d := newTestData(scaffold())
	d.Current = Window{"a": nil, "b": {0}}
	_, _, err := d.Store.CreateLayers(context.Background(), []layer.Layer{layer.Transparent{}})
	require.NoError(t, err)

	step := Step{Run: RunnerSpec{AppendLayers: []LayerSpec{
		{Layer: layer.Translation{Select: layer.All(), Vector: geometry.Vec3{X: 1}}},
		{Layer: layer.Transparent{}},
	}}}
	require.NoError(t, d.RunStep(context.Background(), 0, step))

	assert.Equal(t, Window{"a": {1, 2}, "b": {0, 1, 2}}, d.Current)

	resolved, err := d.Resolver().Resolve(context.Background(), d.Current["a"])
	require.NoError(t, err)
	a, ok := resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{X: 1}, a.Position)
}

func TestStepFromLoadsWindow(t *testing.T) {
	d := newTestData(scaffold())
	d.Windows["branch"] = Window{"x": {4, 5}}

	step := Step{From: "branch", Run: RunnerSpec{Rename: &Rename{Prefix: "p"}}}
	require.NoError(t, d.RunStep(context.Background(), 0, step))
	assert.Contains(t, d.Current, "p_x")
}

func TestStepFromUnknownWindow(t *testing.T) {
	d := newTestData(scaffold())
	err := d.RunStep(context.Background(), 3, Step{From: "nowhere", Run: RunnerSpec{Rename: &Rename{}}})
	require.Error(t, err)

	var notFound *WindowNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nowhere", notFound.Name)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 3, stepErr.Index)
}

func TestStepNameRegistersWindow(t *testing.T) {
	d := newTestData(scaffold())
	d.Current = Window{"a": {7}}

	step := Step{Name: "saved", Run: RunnerSpec{Rename: &Rename{Suffix: "s"}}}
	require.NoError(t, d.RunStep(context.Background(), 0, step))

	require.Contains(t, d.Windows, "saved")
	assert.Equal(t, d.Current, d.Windows["saved"])

	// The registered copy must not alias the live window.
	d.Current["other"] = []uint64{1}
	assert.NotContains(t, d.Windows["saved"], "other")
}

func TestRenameRewritesTitles(t *testing.T) {
	d := newTestData(scaffold())
	d.Current = Window{"mol_x": nil}

	step := Step{Run: RunnerSpec{Rename: &Rename{
		Prefix:  "p",
		Suffix:  "s",
		Replace: []string{"x", "y"},
	}}}
	require.NoError(t, d.RunStep(context.Background(), 0, step))

	require.Contains(t, d.Current, "p_mol_y_s")
	resolved, err := d.Resolver().Resolve(context.Background(), d.Current["p_mol_y_s"])
	require.NoError(t, err)
	assert.Equal(t, "p_mol_y_s", resolved.Title)
}

func TestRenameRejectsBadReplace(t *testing.T) {
	d := newTestData(scaffold())
	d.Current = Window{"a": nil}
	err := d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Rename: &Rename{Replace: []string{"only"}}}})
	assert.Error(t, err)
}

const substituentYAML = `
title: methyl
atoms:
  - element: 1
    position: {x: -1, y: 0, z: 0}
  - element: 8
    position: {x: 1, y: 0, z: 0}
  - element: 1
    position: {x: 2, y: 0, z: 0}
bonds:
  - [null, null, null]
  - [null, null, 1]
  - [null, 1, null]
`

func TestSubstituentGraftsAndFansOut(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "methyl.yaml"), []byte(substituentYAML), 0o644))

	d := newTestData(scaffold())
	step := Step{Name: "sub", Run: RunnerSpec{Substituent: &Substituent{
		Center:      layer.ByIndex(0),
		Replace:     layer.ByIndex(1),
		FilePattern: filepath.Join(dir, "*.yaml"),
	}}}
	require.NoError(t, d.RunStep(context.Background(), 0, step))

	require.Contains(t, d.Windows, "sub_methyl")
	win := d.Windows["sub_methyl"]
	require.Contains(t, win, "scaffold_methyl")

	resolved, err := d.Resolver().Resolve(context.Background(), win["scaffold_methyl"])
	require.NoError(t, err)
	assert.Equal(t, "scaffold_methyl", resolved.Title)

	// Slot 1 now holds the substituent's anchor atom in place of the
	// scaffold hydrogen.
	anchor, ok := resolved.Atoms.ReadAtom(1)
	require.True(t, ok)
	assert.Equal(t, 8, anchor.Element)
	assert.Equal(t, geometry.Vec3{X: 1}, anchor.Position)

	// The substituent tail lands past the scaffold's slots, with its
	// marker and anchor slots left empty.
	assert.Equal(t, 5, resolved.Len())
	_, ok = resolved.Atoms.ReadAtom(2)
	assert.False(t, ok)
	_, ok = resolved.Atoms.ReadAtom(3)
	assert.False(t, ok)
	tail, ok := resolved.Atoms.ReadAtom(4)
	require.True(t, ok)
	assert.Equal(t, 1, tail.Element)
	assert.Equal(t, geometry.Vec3{X: 2}, tail.Position)

	// Bonds: scaffold bond kept, anchor bond rewired onto slot 1, the
	// original anchor slot left unbonded.
	order, ok := resolved.Bonds.ReadBond(0, 1)
	require.True(t, ok)
	assert.Equal(t, 1.0, order)
	order, ok = resolved.Bonds.ReadBond(1, 4)
	require.True(t, ok)
	assert.Equal(t, 1.0, order)
	_, ok = resolved.Bonds.ReadBond(3, 4)
	assert.False(t, ok)
}

func TestSubstituentStepIndexPrefix(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "methyl.yaml"), []byte(substituentYAML), 0o644))

	d := newTestData(scaffold())
	step := Step{Run: RunnerSpec{Substituent: &Substituent{
		Center:      layer.ByIndex(0),
		Replace:     layer.ByIndex(1),
		FilePattern: filepath.Join(dir, "*.yaml"),
	}}}
	require.NoError(t, d.RunStep(context.Background(), 2, step))
	assert.Contains(t, d.Windows, "2_methyl")
	assert.Contains(t, d.Current, "scaffold_methyl")
}

func TestSubstituentNoMatches(t *testing.T) {
	d := newTestData(scaffold())
	err := d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Substituent: &Substituent{
		Center:      layer.ByIndex(0),
		Replace:     layer.ByIndex(1),
		FilePattern: filepath.Join(t.TempDir(), "*.yaml"),
	}}})
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandReplacesWindow(t *testing.T) {
	script := writeScript(t, `test -s stacks.json || exit 1
printf '{"single":{"swapped":[0,1]}}' > output.json
`)
	d := newTestData(scaffold())
	require.NoError(t, d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Command: &Command{Command: script}}}))
	assert.Equal(t, Window{"swapped": {0, 1}}, d.Current)
}

func TestCommandWithoutOutputKeepsWindow(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	d := newTestData(scaffold())
	d.Current = Window{"keep": {9}}
	err := d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Command: &Command{Command: script}}})
	// The path references layer 9 which does not exist, so resolution
	// must fail before the program runs.
	assert.Error(t, err)

	d.Current = Window{"keep": nil}
	require.NoError(t, d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Command: &Command{Command: script}}}))
	assert.Equal(t, Window{"keep": nil}, d.Current)
}

func TestCommandFailurePropagatesStderr(t *testing.T) {
	script := writeScript(t, "echo boom >&2\nexit 3\n")
	d := newTestData(scaffold())
	err := d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Command: &Command{Command: script}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCalculationFoldsResultBack(t *testing.T) {
	script := writeScript(t, `test -s molecule.json || exit 1
printf '[{"element":6,"position":{"x":9,"y":0,"z":0}},{"element":1,"position":{"x":1,"y":0,"z":0}}]' > result.json
`)
	d := newTestData(scaffold())
	require.NoError(t, d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Calculation: &Calculation{Command: script}}}))

	require.Equal(t, []uint64{0}, d.Current[""])
	resolved, err := d.Resolver().Resolve(context.Background(), d.Current[""])
	require.NoError(t, err)
	a, ok := resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{X: 9}, a.Position)
}

func TestCalculationIgnoreFailed(t *testing.T) {
	script := writeScript(t, "exit 1\n")
	d := newTestData(scaffold())
	d.Current = Window{"a": nil}

	err := d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Calculation: &Calculation{Command: script}}})
	assert.Error(t, err)

	require.NoError(t, d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Calculation: &Calculation{
		Command:      script,
		IgnoreFailed: true,
	}}}))
	assert.Equal(t, Window{"a": nil}, d.Current)
}

func TestCalculationCountMismatch(t *testing.T) {
	script := writeScript(t, `printf '[{"element":6,"position":{"x":0,"y":0,"z":0}}]' > result.json
`)
	d := newTestData(scaffold())
	err := d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Calculation: &Calculation{Command: script}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestOutputWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := newTestData(scaffold())
	d.Current = Window{"scaffold": nil}

	require.NoError(t, d.RunStep(context.Background(), 0, Step{Run: RunnerSpec{Output: &Output{
		TargetDirectory: dir,
		TargetFormat:    "xyz",
	}}}))

	raw, err := os.ReadFile(filepath.Join(dir, "scaffold.xyz"))
	require.NoError(t, err)
	assert.Equal(t, "2\nscaffold\nC 0 0 0\nH 1 0 0", string(raw))

	// The window itself is untouched.
	assert.Equal(t, Window{"scaffold": nil}, d.Current)
}

func TestEngineRunsSteps(t *testing.T) {
	store := memstore.New()
	e := NewEngine(store, discardLogger(), "")

	in, err := ParseInput([]byte(`
base:
  title: probe
  atoms:
    - element: 6
      position: {x: 0, y: 0, z: 0}
steps:
  - name: shift
    run:
      append_layers:
        - op: translation
          payload:
            select: {kind: all}
            vector: {x: 2, y: 0, z: 0}
  - name: tag
    run:
      rename:
        suffix: done
`))
	require.NoError(t, err)

	data, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	require.Contains(t, data.Current, "done")
	resolved, err := data.Resolver().Resolve(context.Background(), data.Current["done"])
	require.NoError(t, err)
	assert.Equal(t, "done", resolved.Title)
	a, ok := resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{X: 2}, a.Position)
}

func TestEngineCheckpointResume(t *testing.T) {
	store := memstore.New()
	cp := filepath.Join(t.TempDir(), "checkpoint.json")

	input := `
base:
  title: probe
steps:
  - run:
      append_layers:
        - op: transparent
  - run:
      append_layers:
        - op: transparent
`
	in, err := ParseInput([]byte(input))
	require.NoError(t, err)

	e := NewEngine(store, discardLogger(), cp)
	first, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	ids, err := store.LayerIDs(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// A rerun against the same checkpoint skips every completed step,
	// so no new layers appear and the window state matches.
	in2, err := ParseInput([]byte(input))
	require.NoError(t, err)
	second, err := NewEngine(store, discardLogger(), cp).Run(context.Background(), in2)
	require.NoError(t, err)

	ids, err = store.LayerIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, first.Current, second.Current)
}

func TestEngineNoCheckpointFlag(t *testing.T) {
	store := memstore.New()
	cp := filepath.Join(t.TempDir(), "checkpoint.json")

	in, err := ParseInput([]byte(`
no_checkpoint: true
steps:
  - run:
      append_layers:
        - op: transparent
`))
	require.NoError(t, err)

	_, err = NewEngine(store, discardLogger(), cp).Run(context.Background(), in)
	require.NoError(t, err)
	_, statErr := os.Stat(cp)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWindowCloneIsDeep(t *testing.T) {
	w := Window{"a": {1, 2}}
	c := w.Clone()
	c["a"][0] = 9
	c["b"] = nil
	assert.Equal(t, uint64(1), w["a"][0])
	assert.NotContains(t, w, "b")
}
