// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver materializes molecules from stacks of layer IDs.
//
// A stack is folded left to right: each layer is looked up in the store
// and applied to the accumulator, starting from the base molecule.
// Every prefix of the fold is memoized under its joined path key, so
// two stacks with a common prefix compute that prefix at most once.
package resolver

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/molstack/molstack/services/workspace/molecule"
	"github.com/molstack/molstack/services/workspace/storage"
)

// Resolver folds layer stacks over a fixed base molecule.
//
// The base and the layer store are read-only during the resolver's
// lifetime; the only shared mutable state is the prefix cache, which is
// purely additive. Resolutions of independent stacks may run
// concurrently.
type Resolver struct {
	base  *molecule.SparseMolecule
	store storage.Store
	cache *Cache
	group singleflight.Group
}

// New creates a resolver over a base molecule and a layer store. A nil
// cache gets a default-sized one; pass a fresh cache per test to avoid
// cross-contamination.
func New(base *molecule.SparseMolecule, store storage.Store, cache *Cache) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultCacheSize)
	}
	if base == nil {
		base = molecule.NewSparseMolecule()
	}
	return &Resolver{base: base, store: store, cache: cache}
}

// Cache exposes the prefix cache, mainly for stats reporting.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// pathKey joins a layer-ID path into the memoization key.
func pathKey(path []uint64) string {
	var b strings.Builder
	for i, id := range path {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.FormatUint(id, 10))
	}
	return b.String()
}

// Resolve computes the molecule derived by applying the stack path to
// the base. An empty path returns the base itself.
//
// Fails with a storage.NoSuchLayerError when the path references an
// unknown layer, or with the layer's own error (layer.SelectionError,
// hide range errors) when an operation rejects the accumulator. Both
// are terminal for this resolution; independent stacks are unaffected.
//
// Thread Safety: Safe for concurrent use. Concurrent resolutions of the
// same prefix are deduplicated, so shared prefixes are computed once.
func (r *Resolver) Resolve(ctx context.Context, path []uint64) (*molecule.SparseMolecule, error) {
	acc := r.base
	for i := range path {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prefix := pathKey(path[:i+1])
		if hit, ok := r.cache.Get(prefix); ok {
			acc = hit
			continue
		}

		lower := acc
		id := path[i]
		v, err, _ := r.group.Do(prefix, func() (interface{}, error) {
			if hit, ok := r.cache.Get(prefix); ok {
				return hit, nil
			}
			l, err := r.store.ReadLayer(ctx, id)
			if err != nil {
				return nil, err
			}
			next, err := l.Apply(lower)
			if err != nil {
				return nil, err
			}
			r.cache.Add(prefix, next)
			return next, nil
		})
		if err != nil {
			return nil, err
		}
		acc = v.(*molecule.SparseMolecule)
	}
	return acc, nil
}

// ResolveWindow resolves every named stack in a window concurrently.
// The first failure cancels the remaining resolutions and is returned;
// callers that prefer to skip failed stacks resolve them individually.
func (r *Resolver) ResolveWindow(ctx context.Context, window map[string][]uint64) (map[string]*molecule.SparseMolecule, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	out := make(map[string]*molecule.SparseMolecule, len(window))
	for name, path := range window {
		g.Go(func() error {
			m, err := r.Resolve(ctx, path)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
