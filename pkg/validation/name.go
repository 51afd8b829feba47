// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths or subprocess calls. Using these validators prevents injection
// attacks (command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// workspacePattern matches valid workspace names.
// Workspace names become directory names under the service data dir,
// so separators and leading dots are rejected.
// Max length: 64 characters.
var workspacePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]{0,63}$`)

// formatPattern matches chemical format names ("xyz", "mol2", "pdb").
// Format names are concatenated into obabel arguments, so anything
// that could read as a flag or shell metacharacter is rejected.
var formatPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// InvalidNameError reports a rejected input value.
type InvalidNameError struct {
	// Kind names the input class: "workspace name" or "format".
	Kind string

	// Value is the rejected input.
	Value string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Kind, e.Value)
}

// ValidateWorkspaceName validates a workspace name to prevent path
// traversal when the name is used as a directory.
//
// Valid names:
//   - 1-64 characters
//   - Letters, digits, underscores, hyphens
//   - First character must be a letter or digit
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateWorkspaceName(name); err != nil {
//	    return fmt.Errorf("creating workspace: %w", err)
//	}
//	// Safe to use in filepath.Join
func ValidateWorkspaceName(name string) error {
	if !workspacePattern.MatchString(name) {
		return &InvalidNameError{Kind: "workspace name", Value: name}
	}
	return nil
}

// ValidateFormat validates a chemical format name to prevent argument
// injection in subprocess calls.
//
// Valid formats are 1-16 lowercase alphanumeric characters.
func ValidateFormat(format string) error {
	if !formatPattern.MatchString(format) {
		return &InvalidNameError{Kind: "format", Value: format}
	}
	return nil
}

// SanitizeFormat normalizes and validates a format name.
// Returns the lowercase format if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeFormat, err := validation.SanitizeFormat(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeFormat is lowercase and validated
func SanitizeFormat(format string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	if err := ValidateFormat(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
