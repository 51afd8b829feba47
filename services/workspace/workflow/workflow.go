// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow runs declarative YAML build scripts against a layer
// store. A workflow threads a set of named windows (title to layer path)
// through a list of steps, each of which either extends the current
// window with new layers or fans it out into several derived windows.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/molstack/molstack/services/workspace/molecule"
	"github.com/molstack/molstack/services/workspace/resolver"
	"github.com/molstack/molstack/services/workspace/storage"
)

// Window maps a stack title to its layer path. Resolving a window yields
// one molecule per title.
type Window map[string][]uint64

// Clone returns an independent copy, including the path slices.
func (w Window) Clone() Window {
	out := make(Window, len(w))
	for title, path := range w {
		out[title] = append([]uint64(nil), path...)
	}
	return out
}

// Titles returns the window's stack titles in sorted order, so that
// steps iterate deterministically.
func (w Window) Titles() []string {
	titles := make([]string, 0, len(w))
	for title := range w {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// Input is the top-level shape of a workflow YAML file.
type Input struct {
	NoCheckpoint bool         `yaml:"no_checkpoint,omitempty"`
	Base         MoleculeSpec `yaml:"base"`
	Steps        []Step       `yaml:"steps"`
}

// ParseInput decodes a workflow file.
func ParseInput(data []byte) (*Input, error) {
	var in Input
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing workflow input: %w", err)
	}
	if in.Base.SparseMolecule == nil {
		in.Base.SparseMolecule = molecule.NewSparseMolecule()
	}
	return &in, nil
}

// Step is one unit of a workflow. When From is set the named window is
// loaded as the current one before the runner executes. When the runner
// produces a single window it replaces the current one; when it produces
// several, each is registered under "{prefix}_{suffix}" where the prefix
// is the step name, falling back to the step's index. A Name on a
// single-window step registers the resulting current window.
type Step struct {
	From string     `yaml:"from,omitempty"`
	Name string     `yaml:"name,omitempty"`
	Run  RunnerSpec `yaml:"run"`
}

// Data is the mutable state a workflow run threads through its steps.
type Data struct {
	Base    *molecule.SparseMolecule
	Store   storage.Store
	Windows map[string]Window
	Current Window

	res *resolver.Resolver
	log *slog.Logger
}

// NewData returns a fresh run state. The current window starts with a
// single untitled empty stack, mirrored under the reserved window name
// "base" so later steps can branch from the starting point.
func NewData(base *molecule.SparseMolecule, store storage.Store, log *slog.Logger) *Data {
	if base == nil {
		base = molecule.NewSparseMolecule()
	}
	if log == nil {
		log = slog.Default()
	}
	current := Window{"": nil}
	return &Data{
		Base:    base,
		Store:   store,
		Windows: map[string]Window{"base": current.Clone()},
		Current: current,
		res:     resolver.New(base, store, nil),
		log:     log,
	}
}

// Resolver returns the memoizing resolver bound to this run's base and
// store. All steps share it so common prefixes are computed once.
func (d *Data) Resolver() *resolver.Resolver {
	return d.res
}

// RunStep executes a single step against the run state.
func (d *Data) RunStep(ctx context.Context, index int, step Step) error {
	if step.From != "" {
		w, ok := d.Windows[step.From]
		if !ok {
			return &StepError{Index: index, Label: step.Name, Err: &WindowNotFoundError{Name: step.From}}
		}
		d.Current = w.Clone()
	}

	r, err := step.Run.runner()
	if err != nil {
		return &StepError{Index: index, Label: step.Name, Err: err}
	}
	out, err := r.Execute(ctx, d)
	if err != nil {
		return &StepError{Index: index, Label: step.Name, Err: err}
	}

	switch {
	case out.named != nil:
		prefix := step.Name
		if prefix == "" {
			prefix = strconv.Itoa(index)
		}
		merged := Window{}
		for _, suffix := range sortedKeys(out.named) {
			name := prefix + "_" + suffix
			if _, exists := d.Windows[name]; exists {
				d.log.Warn("overtaking existing window", "window", name)
			}
			w := out.named[suffix]
			d.Windows[name] = w.Clone()
			for title, path := range w {
				merged[title] = append([]uint64(nil), path...)
			}
		}
		d.Current = merged
	case out.window != nil:
		d.Current = out.window
		if step.Name != "" {
			if _, exists := d.Windows[step.Name]; exists {
				d.log.Warn("overtaking existing window", "window", step.Name)
			}
			d.Windows[step.Name] = d.Current.Clone()
		}
	default:
		if step.Name != "" {
			if _, exists := d.Windows[step.Name]; exists {
				d.log.Warn("overtaking existing window", "window", step.Name)
			}
			d.Windows[step.Name] = d.Current.Clone()
		}
	}
	return nil
}

// Checkpoint is a resumable snapshot written after each completed step.
// Layer records themselves live in the store, so resuming requires
// reopening the same persistent store the run started with.
type Checkpoint struct {
	Skip    int                      `json:"skip"`
	Base    *molecule.SparseMolecule `json:"base"`
	Windows map[string]Window        `json:"windows"`
	Current Window                   `json:"current"`
}

// Engine drives workflow inputs against a layer store.
type Engine struct {
	store          storage.Store
	log            *slog.Logger
	checkpointPath string
}

// NewEngine returns an engine. checkpointPath may be empty, in which
// case no checkpoint file is read or written regardless of the input's
// no_checkpoint flag.
func NewEngine(store storage.Store, log *slog.Logger, checkpointPath string) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, log: log, checkpointPath: checkpointPath}
}

// Run executes every step of in, saving a checkpoint after each one
// unless checkpointing is disabled. When a checkpoint from an earlier
// run exists, the completed steps are skipped and the saved window state
// is restored.
func (e *Engine) Run(ctx context.Context, in *Input) (*Data, error) {
	useCheckpoint := e.checkpointPath != "" && !in.NoCheckpoint

	data := NewData(in.Base.SparseMolecule, e.store, e.log)
	skip := 0
	if useCheckpoint {
		cp, err := readCheckpoint(e.checkpointPath)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			e.log.Info("resuming from checkpoint", "path", e.checkpointPath, "skip", cp.Skip)
			data = NewData(cp.Base, e.store, e.log)
			data.Windows = cp.Windows
			data.Current = cp.Current
			skip = cp.Skip
		}
	}

	for i := skip; i < len(in.Steps); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := in.Steps[i]
		e.log.Info("running step", "index", i, "name", step.Name, "from", step.From)
		if err := data.RunStep(ctx, i, step); err != nil {
			return nil, err
		}
		if useCheckpoint {
			cp := Checkpoint{Skip: i + 1, Base: data.Base, Windows: data.Windows, Current: data.Current}
			if err := writeCheckpoint(e.checkpointPath, cp); err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func readCheckpoint(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	if cp.Base == nil {
		cp.Base = molecule.NewSparseMolecule()
	}
	return &cp, nil
}

func writeCheckpoint(path string, cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", path, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
