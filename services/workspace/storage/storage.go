// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the layer store contract: a persistent
// append-only table from integer layer IDs to serialized layer
// operations. IDs are assigned monotonically from zero; a batch create
// always returns a contiguous half-open range.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/molstack/molstack/services/workspace/layer"
)

// ErrNoSuchLayer is the sentinel wrapped by NoSuchLayerError; match it
// with errors.Is.
var ErrNoSuchLayer = errors.New("no such layer")

// NoSuchLayerError reports a lookup of a layer ID absent from the store.
type NoSuchLayerError struct {
	ID uint64
}

func (e *NoSuchLayerError) Error() string {
	return fmt.Sprintf("layer %d: no such layer", e.ID)
}

func (e *NoSuchLayerError) Unwrap() error {
	return ErrNoSuchLayer
}

// Store is the layer store contract.
//
// Implementations must serialize CreateLayers calls so that assigned ID
// ranges never overlap, while reads proceed concurrently. Layers are
// immutable once created; WriteLayer exists only for server-side edits
// of layers the caller has verified are unreferenced by any stack.
type Store interface {
	// CreateLayers appends a batch of layers and returns the assigned
	// contiguous ID range [start, end).
	CreateLayers(ctx context.Context, layers []layer.Layer) (start, end uint64, err error)

	// ReadLayer returns the layer stored under id. Fails with a
	// NoSuchLayerError when id is absent.
	ReadLayer(ctx context.Context, id uint64) (layer.Layer, error)

	// LayerIDs returns every stored layer ID in ascending order.
	LayerIDs(ctx context.Context) ([]uint64, error)

	// WriteLayer overwrites an existing layer in place. Fails with a
	// NoSuchLayerError when id was never assigned.
	WriteLayer(ctx context.Context, id uint64, l layer.Layer) error

	// RemoveLayer deletes a layer record. Fails with a NoSuchLayerError
	// when id is absent.
	RemoveLayer(ctx context.Context, id uint64) error

	// Close releases the underlying resources.
	Close() error
}
