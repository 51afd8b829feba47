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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/molstack/molstack/services/workspace/geometry"
	"github.com/molstack/molstack/services/workspace/ioformat"
	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/molecule"
)

// RunnerSpec is the tagged union of runner kinds a step can carry.
// Exactly one field must be set.
type RunnerSpec struct {
	AppendLayers []LayerSpec  `yaml:"append_layers,omitempty"`
	Substituent  *Substituent `yaml:"substituent,omitempty"`
	Rename       *Rename      `yaml:"rename,omitempty"`
	Command      *Command     `yaml:"command,omitempty"`
	Calculation  *Calculation `yaml:"calculation,omitempty"`
	Output       *Output      `yaml:"output,omitempty"`
}

func (s RunnerSpec) runner() (runner, error) {
	var picked []runner
	if s.AppendLayers != nil {
		picked = append(picked, appendLayers(s.AppendLayers))
	}
	if s.Substituent != nil {
		picked = append(picked, s.Substituent)
	}
	if s.Rename != nil {
		picked = append(picked, s.Rename)
	}
	if s.Command != nil {
		picked = append(picked, s.Command)
	}
	if s.Calculation != nil {
		picked = append(picked, s.Calculation)
	}
	if s.Output != nil {
		picked = append(picked, s.Output)
	}
	switch len(picked) {
	case 0:
		return nil, errors.New("step run block names no runner")
	case 1:
		return picked[0], nil
	default:
		return nil, errors.New("step run block names more than one runner")
	}
}

// runnerOutput is what a runner hands back to the step loop: a single
// replacement window, a fan-out of named windows, or neither.
type runnerOutput struct {
	window Window
	named  map[string]Window
}

func singleOutput(w Window) runnerOutput { return runnerOutput{window: w} }

func namedOutput(m map[string]Window) runnerOutput { return runnerOutput{named: m} }

func noOutput() runnerOutput { return runnerOutput{} }

type runner interface {
	Execute(ctx context.Context, d *Data) (runnerOutput, error)
}

// appendLayers stores its layers once and extends every stack in the
// current window with the new IDs.
type appendLayers []LayerSpec

func (r appendLayers) Execute(ctx context.Context, d *Data) (runnerOutput, error) {
	layers := make([]layer.Layer, len(r))
	for i, spec := range r {
		layers[i] = spec.Layer
	}
	start, end, err := d.Store.CreateLayers(ctx, layers)
	if err != nil {
		return noOutput(), fmt.Errorf("storing layers: %w", err)
	}
	out := Window{}
	for title, path := range d.Current {
		extended := append([]uint64(nil), path...)
		for id := start; id < end; id++ {
			extended = append(extended, id)
		}
		out[title] = extended
	}
	return singleOutput(out), nil
}

// Substituent grafts each substituent molecule from a YAML glob onto
// every stack in the current window, producing one derived window per
// substituent file.
//
// The substituent convention is positional: slot 0 holds a marker atom
// discarded outright, slot 1 holds the atom that takes the place of the
// replaced atom in the scaffold. The scaffold is first centered on the
// replaced atom's bonding partner and rotated so the replaced atom sits
// on +X, which is the axis substituent files are drawn along.
type Substituent struct {
	Center      layer.SelectOne `yaml:"center"`
	Replace     layer.SelectOne `yaml:"replace"`
	FilePattern string          `yaml:"file_pattern"`
}

func (r *Substituent) Execute(ctx context.Context, d *Data) (runnerOutput, error) {
	paths, err := filepath.Glob(r.FilePattern)
	if err != nil {
		return noOutput(), fmt.Errorf("globbing %q: %w", r.FilePattern, err)
	}
	if len(paths) == 0 {
		return noOutput(), fmt.Errorf("pattern %q matches no substituent files", r.FilePattern)
	}

	alignStart, _, err := d.Store.CreateLayers(ctx, []layer.Layer{
		layer.SetCenter{Select: r.Center, Center: geometry.Vec3{}},
		layer.DirectionAlign{Select: r.Replace, Direction: geometry.UnitX()},
	})
	if err != nil {
		return noOutput(), fmt.Errorf("storing alignment layers: %w", err)
	}

	named := map[string]Window{}
	for _, file := range paths {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		sub, err := loadSubstituent(file)
		if err != nil {
			return noOutput(), err
		}
		replaceAtom, ok := layer.ByIndex(1).GetAtom(sub)
		if !ok {
			return noOutput(), fmt.Errorf("substituent %s has no atom in slot 1", file)
		}

		win := Window{}
		for _, title := range d.Current.Titles() {
			path := d.Current[title]
			scaffold, err := d.res.Resolve(ctx, path)
			if err != nil {
				return noOutput(), fmt.Errorf("resolving stack %q: %w", title, err)
			}
			patch, err := graft(scaffold, sub, replaceAtom, r.Replace)
			if err != nil {
				return noOutput(), fmt.Errorf("grafting %s onto %q: %w", name, title, err)
			}
			patch.Title = joinTitle(scaffold.Title, name)

			fillStart, _, err := d.Store.CreateLayers(ctx, []layer.Layer{layer.Fill{Data: patch}})
			if err != nil {
				return noOutput(), fmt.Errorf("storing graft layer: %w", err)
			}
			extended := append([]uint64(nil), path...)
			extended = append(extended, alignStart, alignStart+1, fillStart)
			win[patch.Title] = extended
		}
		named[name] = win
	}
	return namedOutput(named), nil
}

// graft builds the Fill patch that attaches sub to scaffold. The patch
// carries the substituent's atoms offset past the scaffold's slots, the
// replaced atom overwritten in place, and the bonds of the substituent's
// anchor rewired onto the replaced index.
func graft(scaffold, sub *molecule.SparseMolecule, anchor molecule.Atom, replace layer.SelectOne) (*molecule.SparseMolecule, error) {
	offset := scaffold.Len()

	patch := sub.Clone()
	patch.Atoms.SetAtoms(0, []*molecule.Atom{nil, nil})
	patch = patch.Offset(offset)
	for name, idx := range scaffold.IDs {
		patch.IDs[name] = idx
	}

	if !replace.PutAtom(patch, &anchor) {
		return nil, &layer.SelectionError{Selector: replace}
	}
	replacedIndex, _ := replace.ToIndex(patch)
	for neighbor, order := range patch.Bonds.Neighbors(offset + 1) {
		patch.Bonds.SetOrder(replacedIndex, neighbor, order)
		patch.Bonds.SetBond(offset+1, neighbor, nil)
	}
	return patch, nil
}

func loadSubstituent(path string) (*molecule.SparseMolecule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading substituent %s: %w", path, err)
	}
	var spec MoleculeSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decoding substituent %s: %w", path, err)
	}
	if spec.SparseMolecule == nil {
		spec.SparseMolecule = molecule.NewSparseMolecule()
	}
	return spec.SparseMolecule, nil
}

func joinTitle(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}

// Rename rewrites every stack title in the current window, both the
// window key and the resolved molecule's title via a stored SetTitle
// layer. Replace, when present, is a [from, to] substring substitution
// applied before the prefix and suffix are joined on.
type Rename struct {
	Prefix  string   `yaml:"prefix,omitempty"`
	Suffix  string   `yaml:"suffix,omitempty"`
	Replace []string `yaml:"replace,omitempty"`
}

func (r *Rename) Execute(ctx context.Context, d *Data) (runnerOutput, error) {
	if len(r.Replace) != 0 && len(r.Replace) != 2 {
		return noOutput(), fmt.Errorf("rename replace wants [from, to], got %d entries", len(r.Replace))
	}

	titles := d.Current.Titles()
	layers := make([]layer.Layer, len(titles))
	renamed := make([]string, len(titles))
	for i, title := range titles {
		next := title
		if len(r.Replace) == 2 {
			next = strings.ReplaceAll(next, r.Replace[0], r.Replace[1])
		}
		next = joinTitle(r.Prefix, next, r.Suffix)
		renamed[i] = next
		layers[i] = layer.SetTitle{Replace: next}
	}
	start, _, err := d.Store.CreateLayers(ctx, layers)
	if err != nil {
		return noOutput(), fmt.Errorf("storing rename layers: %w", err)
	}

	out := Window{}
	for i, title := range titles {
		extended := append([]uint64(nil), d.Current[title]...)
		extended = append(extended, start+uint64(i))
		out[renamed[i]] = extended
	}
	return singleOutput(out), nil
}

// Command hands the current window to an external program. The program
// runs in a scratch directory holding stacks.json, the window's paths
// and resolved structures, and may leave an output.json describing the
// window state to continue with. No output.json leaves the window
// untouched.
type Command struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

type commandPayload struct {
	Window Window                            `json:"window"`
	Stacks map[string]ioformat.BasicMolecule `json:"stacks"`
}

type commandResult struct {
	Single Window            `json:"single,omitempty"`
	Multi  map[string]Window `json:"multi,omitempty"`
}

func (r *Command) Execute(ctx context.Context, d *Data) (runnerOutput, error) {
	resolved, err := d.res.ResolveWindow(ctx, d.Current)
	if err != nil {
		return noOutput(), err
	}
	payload := commandPayload{Window: d.Current, Stacks: map[string]ioformat.BasicMolecule{}}
	for title, m := range resolved {
		payload.Stacks[title] = ioformat.FromSparse(m)
	}

	dir, err := os.MkdirTemp("", "molstack-command-*")
	if err != nil {
		return noOutput(), fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	raw, err := json.Marshal(payload)
	if err != nil {
		return noOutput(), fmt.Errorf("encoding stacks.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stacks.json"), raw, 0o644); err != nil {
		return noOutput(), fmt.Errorf("writing stacks.json: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return noOutput(), fmt.Errorf("running %s: %w: %s", r.Command, err, msg)
		}
		return noOutput(), fmt.Errorf("running %s: %w", r.Command, err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "output.json"))
	if os.IsNotExist(err) {
		return noOutput(), nil
	}
	if err != nil {
		return noOutput(), fmt.Errorf("reading output.json: %w", err)
	}
	var result commandResult
	if err := json.Unmarshal(out, &result); err != nil {
		return noOutput(), fmt.Errorf("decoding output.json: %w", err)
	}
	switch {
	case result.Multi != nil:
		return namedOutput(result.Multi), nil
	case result.Single != nil:
		return singleOutput(result.Single), nil
	default:
		return noOutput(), nil
	}
}

// Calculation runs an external program once per stack. The program gets
// the stack's dense structure as molecule.json in its working directory
// and leaves result.json, a dense atom list of the same length, whose
// positions and charges are folded back into the stack as a Fill layer.
// With IgnoreFailed set, stacks whose program run fails are carried
// forward unchanged instead of aborting the step.
type Calculation struct {
	Command      string   `yaml:"command"`
	Args         []string `yaml:"args,omitempty"`
	IgnoreFailed bool     `yaml:"ignore_failed,omitempty"`
}

func (r *Calculation) Execute(ctx context.Context, d *Data) (runnerOutput, error) {
	out := Window{}
	for _, title := range d.Current.Titles() {
		path := d.Current[title]
		resolved, err := d.res.Resolve(ctx, path)
		if err != nil {
			return noOutput(), fmt.Errorf("resolving stack %q: %w", title, err)
		}
		dense, err := r.runOnce(ctx, resolved)
		if err != nil {
			if r.IgnoreFailed {
				d.log.Warn("calculation failed, keeping stack unchanged", "stack", title, "error", err)
				out[title] = append([]uint64(nil), path...)
				continue
			}
			return noOutput(), fmt.Errorf("calculating stack %q: %w", title, err)
		}

		updated := resolved.Clone()
		if !updated.UpdateFromContinuous(dense) {
			return noOutput(), fmt.Errorf("calculating stack %q: result atom count mismatch", title)
		}
		start, _, err := d.Store.CreateLayers(ctx, []layer.Layer{layer.Fill{Data: updated}})
		if err != nil {
			return noOutput(), fmt.Errorf("storing calculation layer: %w", err)
		}
		extended := append([]uint64(nil), path...)
		out[title] = append(extended, start)
	}
	return singleOutput(out), nil
}

func (r *Calculation) runOnce(ctx context.Context, m *molecule.SparseMolecule) ([]molecule.Atom, error) {
	dir, err := os.MkdirTemp("", "molstack-calculation-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	raw, err := json.Marshal(ioformat.FromSparse(m))
	if err != nil {
		return nil, fmt.Errorf("encoding molecule.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "molecule.json"), raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing molecule.json: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("running %s: %w: %s", r.Command, err, msg)
		}
		return nil, fmt.Errorf("running %s: %w", r.Command, err)
	}

	result, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if err != nil {
		return nil, fmt.Errorf("reading result.json: %w", err)
	}
	var dense []molecule.Atom
	if err := json.Unmarshal(result, &dense); err != nil {
		return nil, fmt.Errorf("decoding result.json: %w", err)
	}
	return dense, nil
}

// Output exports every stack in the current window to one file per
// stack under TargetDirectory. TargetFormat is "xyz" or "mol2"; any
// other value is produced by encoding XYZ and handing the text to Open
// Babel. The window is passed through unchanged.
type Output struct {
	TargetDirectory string `yaml:"target_directory"`
	TargetFormat    string `yaml:"target_format"`
	Gen3D           bool   `yaml:"gen3d,omitempty"`
	IgnoreFailed    bool   `yaml:"ignore_failed,omitempty"`
}

func (r *Output) Execute(ctx context.Context, d *Data) (runnerOutput, error) {
	if err := os.MkdirAll(r.TargetDirectory, 0o755); err != nil {
		return noOutput(), fmt.Errorf("creating %s: %w", r.TargetDirectory, err)
	}
	resolved, err := d.res.ResolveWindow(ctx, d.Current)
	if err != nil {
		return noOutput(), err
	}
	for _, title := range d.Current.Titles() {
		text, err := r.render(ctx, resolved[title])
		if err != nil {
			if r.IgnoreFailed {
				d.log.Warn("export failed, skipping stack", "stack", title, "error", err)
				continue
			}
			return noOutput(), fmt.Errorf("exporting stack %q: %w", title, err)
		}
		name := title
		if name == "" {
			name = "untitled"
		}
		file := filepath.Join(r.TargetDirectory, name+"."+r.TargetFormat)
		if err := os.WriteFile(file, []byte(text), 0o644); err != nil {
			return noOutput(), fmt.Errorf("writing %s: %w", file, err)
		}
	}
	return noOutput(), nil
}

func (r *Output) render(ctx context.Context, m *molecule.SparseMolecule) (string, error) {
	basic := ioformat.FromSparse(m)
	switch r.TargetFormat {
	case "xyz":
		return ioformat.EncodeXYZ(basic)
	case "mol2":
		return ioformat.EncodeMOL2(basic)
	default:
		text, err := ioformat.EncodeXYZ(basic)
		if err != nil {
			return "", err
		}
		return ioformat.DefaultConverter.Convert(ctx, text, "xyz", r.TargetFormat, r.Gen3D)
	}
}
