// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateWorkspaceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Valid names
		{"simple", "demo", false},
		{"single char", "a", false},
		{"with digit", "run42", false},
		{"with hyphen", "my-workspace", false},
		{"with underscore", "my_workspace", false},
		{"max length", strings.Repeat("a", 64), false},

		// Invalid names
		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"path traversal", "../etc", true},
		{"slash", "a/b", true},
		{"leading dot", ".hidden", true},
		{"leading hyphen", "-flag", true},
		{"space", "a b", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkspaceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWorkspaceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWorkspaceName_ErrorType(t *testing.T) {
	err := ValidateWorkspaceName("../etc")
	var nameErr *InvalidNameError
	if !errors.As(err, &nameErr) {
		t.Fatalf("expected *InvalidNameError, got %T", err)
	}
	if nameErr.Value != "../etc" {
		t.Errorf("Value = %q, want ../etc", nameErr.Value)
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"xyz", "xyz", false},
		{"mol2", "mol2", false},
		{"pdb", "pdb", false},

		{"empty", "", true},
		{"uppercase", "XYZ", true},
		{"flag injection", "-osmi", true},
		{"space", "xyz foo", true},
		{"too long", strings.Repeat("x", 17), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFormat(t *testing.T) {
	got, err := SanitizeFormat("  XYZ ")
	if err != nil {
		t.Fatalf("SanitizeFormat returned error: %v", err)
	}
	if got != "xyz" {
		t.Errorf("SanitizeFormat = %q, want xyz", got)
	}

	if _, err := SanitizeFormat("-osmi"); err == nil {
		t.Error("expected error for flag-like format")
	}
}
