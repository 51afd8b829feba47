// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace exposes layer stores and stack resolution as a
// multi-tenant HTTP service. Each workspace owns one layer store, a
// list of stacks (layer paths), and a memoizing resolver.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/molstack/molstack/pkg/validation"
	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/molecule"
	"github.com/molstack/molstack/services/workspace/resolver"
	"github.com/molstack/molstack/services/workspace/storage"
	badgerstore "github.com/molstack/molstack/services/workspace/storage/badger"
	"github.com/molstack/molstack/services/workspace/storage/memstore"
	"github.com/molstack/molstack/services/workspace/telemetry"
)

// Config controls how the service provisions workspaces.
type Config struct {
	// DataDir is where per-workspace badger stores are created. Leave
	// empty to hold every workspace in memory.
	DataDir string

	// CacheSize bounds each workspace's resolver cache. Zero selects
	// the resolver default.
	CacheSize int
}

// Service is the shared state behind the HTTP handlers.
type Service struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace

	cfg     Config
	log     *slog.Logger
	metrics *telemetry.Metrics
}

// NewService returns an empty service. log must not be nil; metrics may
// be nil to disable instrumentation.
func NewService(cfg Config, log *slog.Logger, metrics *telemetry.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		workspaces: make(map[string]*Workspace),
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
	}
}

// CreateWorkspace provisions a new named workspace with the given base
// molecule (nil for an empty one).
func (s *Service) CreateWorkspace(name string, base *molecule.SparseMolecule) error {
	// Workspace names become directory names under DataDir.
	if err := validation.ValidateWorkspaceName(name); err != nil {
		return err
	}
	if base == nil {
		base = molecule.NewSparseMolecule()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workspaces[name]; exists {
		return ErrWorkspaceExists
	}

	store, err := s.openStore(name)
	if err != nil {
		return fmt.Errorf("provisioning workspace %q: %w", name, err)
	}
	cache := resolver.NewCache(s.cfg.CacheSize)
	s.workspaces[name] = &Workspace{
		name:  name,
		store: store,
		base:  base,
		res:   resolver.New(base, store, cache),
	}
	s.log.Info("workspace created", "workspace", name, "atoms", base.Len())
	return nil
}

func (s *Service) openStore(name string) (storage.Store, error) {
	if s.cfg.DataDir == "" {
		return memstore.New(), nil
	}
	cfg := badgerstore.DefaultConfig()
	cfg.Path = filepath.Join(s.cfg.DataDir, name)
	cfg.Logger = s.log.With("workspace", name)
	return badgerstore.Open(cfg)
}

// RemoveWorkspace deletes a workspace and closes its store.
func (s *Service) RemoveWorkspace(name string) error {
	s.mu.Lock()
	ws, ok := s.workspaces[name]
	if ok {
		delete(s.workspaces, name)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNoSuchWorkspace
	}
	if err := ws.store.Close(); err != nil {
		return fmt.Errorf("closing workspace %q store: %w", name, err)
	}
	s.log.Info("workspace removed", "workspace", name)
	return nil
}

// Workspace looks up a workspace by name.
func (s *Service) Workspace(name string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[name]
	if !ok {
		return nil, ErrNoSuchWorkspace
	}
	return ws, nil
}

// CacheStats sums resolver cache counters across all workspaces. The
// daemon feeds this into the telemetry gauges.
func (s *Service) CacheStats() (hits, misses, evictions, size int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ws := range s.workspaces {
		st := ws.CacheStats()
		hits += st.Hits
		misses += st.Misses
		evictions += st.Evictions
		size += int64(st.Size)
	}
	return hits, misses, evictions, size
}

// Close shuts down every workspace store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, ws := range s.workspaces {
		if err := ws.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing workspace %q store: %w", name, err)
		}
		delete(s.workspaces, name)
	}
	return firstErr
}

// Workspace bundles one tenant's layer store, stack list, and resolver.
// Stacks are addressed by ordinal: cloning and extending append to the
// list, and slicing edits a stack in place.
type Workspace struct {
	mu     sync.RWMutex
	name   string
	store  storage.Store
	stacks [][]uint64
	base   *molecule.SparseMolecule
	res    *resolver.Resolver
}

// Snapshot is the exportable state of a workspace. Layers carry their
// tagged envelopes so a snapshot round-trips through the layer codec.
type Snapshot struct {
	Base   *molecule.SparseMolecule   `json:"base"`
	Layers map[uint64]json.RawMessage `json:"layers"`
	Stacks [][]uint64                 `json:"stacks"`
}

// AddStack appends a stack with the given layer path and returns its
// ordinal.
func (w *Workspace) AddStack(path []uint64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stacks = append(w.stacks, append([]uint64(nil), path...))
	return len(w.stacks) - 1
}

// Stacks returns a copy of every stack path.
func (w *Workspace) Stacks() [][]uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([][]uint64, len(w.stacks))
	for i, path := range w.stacks {
		out[i] = append([]uint64(nil), path...)
	}
	return out
}

func (w *Workspace) stackPath(id int) ([]uint64, error) {
	if id < 0 || id >= len(w.stacks) {
		return nil, &StackOutOfRangeError{ID: id, Count: len(w.stacks)}
	}
	return append([]uint64(nil), w.stacks[id]...), nil
}

// ResolveStack folds the stack's layer path over the workspace base.
func (w *Workspace) ResolveStack(ctx context.Context, id int) (*molecule.SparseMolecule, error) {
	w.mu.RLock()
	path, err := w.stackPath(id)
	w.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return w.res.Resolve(ctx, path)
}

// CloneStack appends copies duplicates of the stack and returns their
// ordinals.
func (w *Workspace) CloneStack(id, copies int) ([]int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, err := w.stackPath(id)
	if err != nil {
		return nil, err
	}
	ids := make([]int, copies)
	for i := range ids {
		w.stacks = append(w.stacks, append([]uint64(nil), path...))
		ids[i] = len(w.stacks) - 1
	}
	return ids, nil
}

// SliceStack trims the stack's path to [start, end) in place.
func (w *Workspace) SliceStack(id, start, end int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id < 0 || id >= len(w.stacks) {
		return &StackOutOfRangeError{ID: id, Count: len(w.stacks)}
	}
	path := w.stacks[id]
	if start < 0 || end < start || end > len(path) {
		return &SliceRangeError{Start: start, End: end, Len: len(path)}
	}
	w.stacks[id] = append([]uint64(nil), path[start:end]...)
	return nil
}

// ExtendStack stores the layers and appends a new stack whose path is
// the source stack's path extended by the fresh layer IDs. Returns the
// new stack's ordinal.
func (w *Workspace) ExtendStack(ctx context.Context, id int, layers []layer.Layer) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, err := w.stackPath(id)
	if err != nil {
		return 0, err
	}
	start, end, err := w.store.CreateLayers(ctx, layers)
	if err != nil {
		return 0, fmt.Errorf("storing layers: %w", err)
	}
	for lid := start; lid < end; lid++ {
		path = append(path, lid)
	}
	w.stacks = append(w.stacks, path)
	return len(w.stacks) - 1, nil
}

// CreateLayers stores layers without touching any stack.
func (w *Workspace) CreateLayers(ctx context.Context, layers []layer.Layer) (uint64, uint64, error) {
	return w.store.CreateLayers(ctx, layers)
}

// ReadLayer returns a stored layer.
func (w *Workspace) ReadLayer(ctx context.Context, id uint64) (layer.Layer, error) {
	return w.store.ReadLayer(ctx, id)
}

// LayerIDs lists every stored layer ID.
func (w *Workspace) LayerIDs(ctx context.Context) ([]uint64, error) {
	return w.store.LayerIDs(ctx)
}

// referencedLayers returns the set of layer IDs any stack references.
// Callers must hold at least a read lock.
func (w *Workspace) referencedLayers() map[uint64]struct{} {
	used := map[uint64]struct{}{}
	for _, path := range w.stacks {
		for _, id := range path {
			used[id] = struct{}{}
		}
	}
	return used
}

// RemoveUnusedLayers deletes every stored layer no stack references and
// returns the removed IDs.
func (w *Workspace) RemoveUnusedLayers(ctx context.Context) ([]uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids, err := w.store.LayerIDs(ctx)
	if err != nil {
		return nil, err
	}
	used := w.referencedLayers()
	var removed []uint64
	for _, id := range ids {
		if _, ok := used[id]; ok {
			continue
		}
		if err := w.store.RemoveLayer(ctx, id); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// editableData extracts the molecule payload of a layer that carries
// one, or fails with a LayerNotEditableError.
func editableData(id uint64, l layer.Layer) (*molecule.SparseMolecule, func(*molecule.SparseMolecule) layer.Layer, error) {
	// The store may hand back pointer or value forms depending on how
	// the layer was written.
	switch v := l.(type) {
	case *layer.Fill:
		return v.Data, func(m *molecule.SparseMolecule) layer.Layer { return layer.Fill{Data: m} }, nil
	case layer.Fill:
		return v.Data, func(m *molecule.SparseMolecule) layer.Layer { return layer.Fill{Data: m} }, nil
	case *layer.Insert:
		offset := v.Offset
		return v.Data, func(m *molecule.SparseMolecule) layer.Layer { return layer.Insert{Offset: offset, Data: m} }, nil
	case layer.Insert:
		offset := v.Offset
		return v.Data, func(m *molecule.SparseMolecule) layer.Layer { return layer.Insert{Offset: offset, Data: m} }, nil
	case *layer.Append:
		name := v.Name
		return v.Data, func(m *molecule.SparseMolecule) layer.Layer { return layer.Append{Name: name, Data: m} }, nil
	case layer.Append:
		name := v.Name
		return v.Data, func(m *molecule.SparseMolecule) layer.Layer { return layer.Append{Name: name, Data: m} }, nil
	default:
		return nil, nil, &LayerNotEditableError{ID: id, Op: l.Op()}
	}
}

// editLayer rewrites an unreferenced molecule-carrying layer in place.
func (w *Workspace) editLayer(ctx context.Context, id uint64, edit func(*molecule.SparseMolecule)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, referenced := w.referencedLayers()[id]; referenced {
		return &LayerInUseError{ID: id}
	}
	l, err := w.store.ReadLayer(ctx, id)
	if err != nil {
		return err
	}
	data, rebuild, err := editableData(id, l)
	if err != nil {
		return err
	}
	updated := data.Clone()
	edit(updated)
	if err := w.store.WriteLayer(ctx, id, rebuild(updated)); err != nil {
		return err
	}
	// Sliced-away prefixes may still be cached with the old contents.
	w.res.Cache().Purge()
	return nil
}

// SetLayerAtoms overwrites atom slots of an unreferenced layer's
// molecule payload starting at offset; nil entries clear slots.
func (w *Workspace) SetLayerAtoms(ctx context.Context, id uint64, offset int, atoms []*molecule.Atom) error {
	return w.editLayer(ctx, id, func(m *molecule.SparseMolecule) {
		m.Atoms.SetAtoms(offset, atoms)
	})
}

// SetLayerBonds writes symmetric bond orders into an unreferenced
// layer's molecule payload; a nil order clears the bond.
func (w *Workspace) SetLayerBonds(ctx context.Context, id uint64, bonds []BondWrite) error {
	return w.editLayer(ctx, id, func(m *molecule.SparseMolecule) {
		for _, b := range bonds {
			m.Bonds.SetBond(b.A, b.B, b.Order)
		}
	})
}

// Export snapshots the workspace's base, layers, and stacks.
func (w *Workspace) Export(ctx context.Context) (*Snapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids, err := w.store.LayerIDs(ctx)
	if err != nil {
		return nil, err
	}
	layers := make(map[uint64]json.RawMessage, len(ids))
	for _, id := range ids {
		l, err := w.store.ReadLayer(ctx, id)
		if err != nil {
			return nil, err
		}
		envelope, err := layer.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("encoding layer %d: %w", id, err)
		}
		layers[id] = envelope
	}
	stacks := make([][]uint64, len(w.stacks))
	for i, path := range w.stacks {
		stacks[i] = append([]uint64(nil), path...)
	}
	return &Snapshot{Base: w.base, Layers: layers, Stacks: stacks}, nil
}

// CacheStats exposes the resolver cache counters for telemetry.
func (w *Workspace) CacheStats() resolver.CacheStats {
	return w.res.Cache().Stats()
}
