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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molstack/molstack/services/workspace/geometry"
)

func TestCodecPreservesDiscriminant(t *testing.T) {
	data, err := Marshal(Translation{Select: All(), Vector: geometry.Vec3{X: 5}})
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &env))
	assert.JSONEq(t, `"translation"`, string(env["op"]))
}

func TestCodecRoundTripBehavesIdentically(t *testing.T) {
	// Encode, decode, and check the decoded layer transforms a molecule
	// exactly like the original.
	layers := []Layer{
		Fill{Data: carbonOxide()},
		Translation{Select: ByIndexes(ByIndex(1)), Vector: geometry.Vec3{Z: 2}},
		Rotation{Select: All(), Axis: geometry.Vec3{Z: 1}, Angle: 90, Degree: true},
		Hide{Select: ByElement(8)},
		GroupMap{Groups: []GroupEntry{{Name: "ring", Select: ByRange(0, 1)}}},
		SetTitle{Replace: "decoded"},
		Transparent{},
	}

	for _, original := range layers {
		t.Run(original.Op(), func(t *testing.T) {
			data, err := Marshal(original)
			require.NoError(t, err)
			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, original.Op(), decoded.Op())

			base := carbonOxide()
			want, err := original.Apply(base)
			require.NoError(t, err)
			got, err := decoded.Apply(base)
			require.NoError(t, err)

			wantJSON, err := json.Marshal(want)
			require.NoError(t, err)
			gotJSON, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, string(wantJSON), string(gotJSON))
		})
	}
}

func TestUnmarshalRejectsUnknownOp(t *testing.T) {
	_, err := Unmarshal([]byte(`{"op":"explode"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}
