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

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/molecule"
)

// LayerSpec decodes a layer's tagged envelope from YAML by bridging
// through the JSON codec, so workflow files and the layer store share
// one wire format.
type LayerSpec struct {
	layer.Layer
}

func (s *LayerSpec) UnmarshalYAML(node *yaml.Node) error {
	raw := map[string]interface{}{}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding layer node: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("bridging layer node to JSON: %w", err)
	}
	l, err := layer.Unmarshal(data)
	if err != nil {
		return err
	}
	s.Layer = l
	return nil
}

// MoleculeSpec decodes a sparse molecule from YAML through the same
// JSON bridge.
type MoleculeSpec struct {
	*molecule.SparseMolecule
}

func (s *MoleculeSpec) UnmarshalYAML(node *yaml.Node) error {
	raw := map[string]interface{}{}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding molecule node: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("bridging molecule node to JSON: %w", err)
	}
	m := molecule.NewSparseMolecule()
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("decoding molecule: %w", err)
	}
	s.SparseMolecule = m
	return nil
}
