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

import (
	"encoding/json"
	"fmt"
)

// envelope is the self-describing storage encoding of a Layer: the
// operation discriminant plus the variant's own fields.
type envelope struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var decoders = map[string]func() Layer{
	OpFill:               func() Layer { return &Fill{} },
	OpInsert:             func() Layer { return &Insert{} },
	OpAppend:             func() Layer { return &Append{} },
	OpSetAtom:            func() Layer { return &SetAtom{} },
	OpUpdateFormalCharge: func() Layer { return &UpdateFormalCharge{} },
	OpAppendAtoms:        func() Layer { return &AppendAtoms{} },
	OpSetBond:            func() Layer { return &SetBond{} },
	OpIDMap:              func() Layer { return &IDMap{} },
	OpGroupMap:           func() Layer { return &GroupMap{} },
	OpSetCenter:          func() Layer { return &SetCenter{} },
	OpDirectionAlign:     func() Layer { return &DirectionAlign{} },
	OpXYAlign:            func() Layer { return &XYAlign{} },
	OpTranslation:        func() Layer { return &Translation{} },
	OpTranslationTo:      func() Layer { return &TranslationTo{} },
	OpRotationTo:         func() Layer { return &RotationTo{} },
	OpRotation:           func() Layer { return &Rotation{} },
	OpIsometry:           func() Layer { return &IsometryOp{} },
	OpMirror:             func() Layer { return &Mirror{} },
	OpRemoveAtoms:        func() Layer { return &RemoveAtoms{} },
	OpHide:               func() Layer { return &Hide{} },
	OpUnHide:             func() Layer { return &UnHide{} },
	OpTransparent:        func() Layer { return &Transparent{} },
	OpSetTitle:           func() Layer { return &SetTitle{} },
}

// Marshal encodes a Layer into its tagged storage envelope.
func Marshal(l Layer) ([]byte, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encoding %s layer: %w", l.Op(), err)
	}
	return json.Marshal(envelope{Op: l.Op(), Payload: payload})
}

// Unmarshal decodes a tagged storage envelope back into its Layer
// variant.
func Unmarshal(data []byte) (Layer, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding layer envelope: %w", err)
	}
	mk, ok := decoders[env.Op]
	if !ok {
		return nil, fmt.Errorf("unknown layer operation %q", env.Op)
	}
	l := mk()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, l); err != nil {
			return nil, fmt.Errorf("decoding %s layer: %w", env.Op, err)
		}
	}
	return l, nil
}
