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
	"errors"
	"fmt"
)

var (
	// ErrWorkspaceExists is returned when creating a workspace whose
	// name is already taken.
	ErrWorkspaceExists = errors.New("workspace name already used")

	// ErrNoSuchWorkspace is returned for operations on an unknown
	// workspace name.
	ErrNoSuchWorkspace = errors.New("no such workspace")
)

// StackOutOfRangeError is returned when a stack ordinal exceeds the
// workspace's stack list.
type StackOutOfRangeError struct {
	ID    int
	Count int
}

func (e *StackOutOfRangeError) Error() string {
	return fmt.Sprintf("stack %d out of range, workspace holds %d stacks", e.ID, e.Count)
}

// LayerInUseError is returned when an in-place layer edit targets a
// layer that some stack still references.
type LayerInUseError struct {
	ID uint64
}

func (e *LayerInUseError) Error() string {
	return fmt.Sprintf("layer %d is referenced by a stack and cannot be edited in place", e.ID)
}

// LayerNotEditableError is returned when an in-place edit targets a
// layer kind that carries no molecule data.
type LayerNotEditableError struct {
	ID uint64
	Op string
}

func (e *LayerNotEditableError) Error() string {
	return fmt.Sprintf("layer %d (%s) holds no editable molecule data", e.ID, e.Op)
}

// SliceRangeError is returned for an invalid stack slice request.
type SliceRangeError struct {
	Start int
	End   int
	Len   int
}

func (e *SliceRangeError) Error() string {
	return fmt.Sprintf("slice [%d, %d) invalid for stack of length %d", e.Start, e.End, e.Len)
}
