// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"github.com/molstack/molstack/services/workspace/molecule"
)

// CreateWorkspaceRequest is the body of POST /v1/workspace.
type CreateWorkspaceRequest struct {
	Name string                   `json:"name" binding:"required"`
	Base *molecule.SparseMolecule `json:"base,omitempty"`
}

// CreateStackRequest is the body of POST .../stacks.
type CreateStackRequest struct {
	Path []uint64 `json:"path"`
}

// StackResponse reports a stack ordinal.
type StackResponse struct {
	StackID int `json:"stack_id"`
}

// CloneStackRequest is the body of POST .../stacks/:id/clone.
type CloneStackRequest struct {
	Copies int `json:"copies"`
}

// CloneStackResponse lists the ordinals of the clones.
type CloneStackResponse struct {
	StackIDs []int `json:"stack_ids"`
}

// SliceStackRequest is the body of PUT .../stacks/:id/slice. The range
// is half-open: layers [Start, End) of the path survive.
type SliceStackRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CreateLayersResponse reports the half-open ID range assigned to a
// batch of layers.
type CreateLayersResponse struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// LayerIDsResponse lists stored layer IDs.
type LayerIDsResponse struct {
	LayerIDs []uint64 `json:"layer_ids"`
}

// RemoveUnusedResponse lists the layers deleted by remove_unused.
type RemoveUnusedResponse struct {
	Removed []uint64 `json:"removed"`
}

// SetAtomsRequest is the body of PUT .../layers/:id/atoms. A null atom
// entry clears the slot back to a gap.
type SetAtomsRequest struct {
	Offset int              `json:"offset"`
	Atoms  []*molecule.Atom `json:"atoms" binding:"required"`
}

// BondWrite is one symmetric bond cell write; a null order clears the
// bond.
type BondWrite struct {
	A     int      `json:"a"`
	B     int      `json:"b"`
	Order *float64 `json:"order"`
}

// SetBondsRequest is the body of PUT .../layers/:id/bonds.
type SetBondsRequest struct {
	Bonds []BondWrite `json:"bonds" binding:"required"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
