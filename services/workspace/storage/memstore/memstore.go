// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memstore provides an in-memory layer store for tests and
// short-lived workflow runs that opt out of persistence.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/storage"
)

// Store is a map-backed layer store guarded by a read-write mutex.
type Store struct {
	mu     sync.RWMutex
	layers map[uint64]layer.Layer
	next   uint64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{layers: make(map[uint64]layer.Layer)}
}

var _ storage.Store = (*Store)(nil)

// CreateLayers appends a batch and returns the assigned ID range.
func (s *Store) CreateLayers(ctx context.Context, layers []layer.Layer) (uint64, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.next
	for _, l := range layers {
		s.layers[s.next] = l
		s.next++
	}
	return start, s.next, nil
}

// ReadLayer returns the layer stored under id.
func (s *Store) ReadLayer(ctx context.Context, id uint64) (layer.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.layers[id]
	if !ok {
		return nil, &storage.NoSuchLayerError{ID: id}
	}
	return l, nil
}

// LayerIDs returns every stored ID in ascending order.
func (s *Store) LayerIDs(ctx context.Context) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.layers))
	for id := range s.layers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// WriteLayer overwrites an existing layer in place.
func (s *Store) WriteLayer(ctx context.Context, id uint64, l layer.Layer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.layers[id]; !ok {
		return &storage.NoSuchLayerError{ID: id}
	}
	s.layers[id] = l
	return nil
}

// RemoveLayer deletes a layer record.
func (s *Store) RemoveLayer(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.layers[id]; !ok {
		return &storage.NoSuchLayerError{ID: id}
	}
	delete(s.layers, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
