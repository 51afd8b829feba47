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

import "fmt"

// WindowNotFoundError is returned when a step's "from" field names a
// window that no earlier step registered.
type WindowNotFoundError struct {
	Name string
}

func (e *WindowNotFoundError) Error() string {
	return fmt.Sprintf("window %q not found", e.Name)
}

// StepError wraps a failure with the index and label of the step that
// produced it.
type StepError struct {
	Index int
	Label string
	Err   error
}

func (e *StepError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("step %d (%s): %v", e.Index, e.Label, e.Err)
	}
	return fmt.Sprintf("step %d: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
