// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layer

import "fmt"

// SelectionError reports a single-atom selector that failed to resolve
// during an operation that requires exactly one atom. It carries the
// offending selector for diagnostics.
type SelectionError struct {
	Selector SelectOne
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selector %s did not resolve to an atom", e.Selector)
}

// HideOverflowError reports a Hide on an atom whose element code is
// already in the hidden band.
type HideOverflowError struct {
	Index   int
	Element int
}

func (e *HideOverflowError) Error() string {
	return fmt.Sprintf("cannot hide atom %d: element %d is already hidden", e.Index, e.Element)
}

// HideUnderflowError reports an UnHide on an atom that is not hidden.
type HideUnderflowError struct {
	Index   int
	Element int
}

func (e *HideUnderflowError) Error() string {
	return fmt.Sprintf("cannot unhide atom %d: element %d is not hidden", e.Index, e.Element)
}

func selectionErr(s SelectOne) error {
	return &SelectionError{Selector: s}
}
