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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molstack/molstack/services/workspace/geometry"
	"github.com/molstack/molstack/services/workspace/molecule"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(Config{}, log, nil)
	t.Cleanup(func() { _ = s.Close() })
	router := gin.New()
	s.SetupRoutes(router)
	return router, s
}

func perform(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func waterBase() *molecule.SparseMolecule {
	m := molecule.NewSparseMolecule()
	m.Title = "water"
	m.Atoms = molecule.AtomListOf(
		molecule.Atom{Element: 8},
		molecule.Atom{Element: 1, Position: geometry.Vec3{X: 1}},
		molecule.Atom{Element: 1, Position: geometry.Vec3{Y: 1}},
	)
	return m
}

func createWorkspace(t *testing.T, router *gin.Engine, name string) {
	t.Helper()
	w := perform(t, router, http.MethodPost, "/v1/workspace", CreateWorkspaceRequest{
		Name: name,
		Base: waterBase(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func translationEnvelope(x float64) map[string]any {
	return map[string]any{
		"op": "translation",
		"payload": map[string]any{
			"select": map[string]any{"kind": "all"},
			"vector": map[string]any{"x": x, "y": 0, "z": 0},
		},
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace", CreateWorkspaceRequest{Name: "demo"})
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.RequestID)

	w = perform(t, router, http.MethodDelete, "/v1/workspace/demo", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(t, router, http.MethodDelete, "/v1/workspace/demo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkspaceNameIsValidated(t *testing.T) {
	router, _ := newTestRouter(t)

	w := perform(t, router, http.MethodPost, "/v1/workspace", CreateWorkspaceRequest{Name: "../escape"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Contains(t, resp.Error, "workspace name")
}

func TestUnknownWorkspaceIs404(t *testing.T) {
	router, _ := newTestRouter(t)
	w := perform(t, router, http.MethodGet, "/v1/workspace/nope/layers", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	router, _ := newTestRouter(t)
	w := perform(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLayerCreateReadList(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		translationEnvelope(1),
		{"op": "transparent"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	r := decode[CreateLayersResponse](t, w)
	assert.Equal(t, uint64(0), r.Start)
	assert.Equal(t, uint64(2), r.End)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/layers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ids := decode[LayerIDsResponse](t, w)
	assert.Equal(t, []uint64{0, 1}, ids.LayerIDs)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/layers/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	envelope := decode[map[string]any](t, w)
	assert.Equal(t, "transparent", envelope["op"])

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/layers/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		{"op": "explode"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStackCreateAndResolve(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		translationEnvelope(2),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{Path: []uint64{0}})
	require.Equal(t, http.StatusCreated, w.Code)
	stack := decode[StackResponse](t, w)
	assert.Equal(t, 0, stack.StackID)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/stacks/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[molecule.SparseMolecule](t, w)
	assert.Equal(t, "water", resolved.Title)
	a, ok := resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{X: 2}, a.Position)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/stacks/5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStackCloneSliceExtend(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{})
	require.Equal(t, http.StatusCreated, w.Code)

	// Extend pushes a new stack with freshly stored layers.
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/stacks/0/add", []map[string]any{
		translationEnvelope(1),
		translationEnvelope(2),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	extended := decode[StackResponse](t, w)
	assert.Equal(t, 1, extended.StackID)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/stacks/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[molecule.SparseMolecule](t, w)
	a, ok := resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{X: 3}, a.Position)

	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks/1/clone", CloneStackRequest{Copies: 2})
	require.Equal(t, http.StatusCreated, w.Code)
	clones := decode[CloneStackResponse](t, w)
	assert.Equal(t, []int{2, 3}, clones.StackIDs)

	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/stacks/2/slice", SliceStackRequest{Start: 0, End: 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/stacks/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved = decode[molecule.SparseMolecule](t, w)
	a, ok = resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{X: 1}, a.Position)

	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/stacks/2/slice", SliceStackRequest{Start: 0, End: 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveUnusedLayers(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		translationEnvelope(1),
		translationEnvelope(2),
		translationEnvelope(3),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{Path: []uint64{1}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/layers/remove_unused", nil)
	require.Equal(t, http.StatusOK, w.Code)
	removed := decode[RemoveUnusedResponse](t, w)
	assert.Equal(t, []uint64{0, 2}, removed.Removed)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/layers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ids := decode[LayerIDsResponse](t, w)
	assert.Equal(t, []uint64{1}, ids.LayerIDs)
}

func fillEnvelope(title string) map[string]any {
	return map[string]any{
		"op": "fill",
		"payload": map[string]any{
			"data": map[string]any{
				"title": title,
				"atoms": []any{
					map[string]any{"element": 6, "position": map[string]any{"x": 0, "y": 0, "z": 0}},
					map[string]any{"element": 8, "position": map[string]any{"x": 1, "y": 0, "z": 0}},
				},
			},
		},
	}
}

func TestInPlaceLayerEdits(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		fillEnvelope("fragment"),
		{"op": "transparent"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Overwrite atom slot 1 of the unreferenced fill layer.
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/layers/0/atoms", SetAtomsRequest{
		Offset: 1,
		Atoms:  []*molecule.Atom{{Element: 7, Position: geometry.Vec3{X: 2}}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	order := 1.5
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/layers/0/bonds", SetBondsRequest{
		Bonds: []BondWrite{{A: 0, B: 1, Order: &order}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/layers/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Op      string `json:"op"`
		Payload struct {
			Data molecule.SparseMolecule `json:"data"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "fill", envelope.Op)
	edited, ok := envelope.Payload.Data.Atoms.ReadAtom(1)
	require.True(t, ok)
	assert.Equal(t, 7, edited.Element)
	got, ok := envelope.Payload.Data.Bonds.ReadBond(0, 1)
	require.True(t, ok)
	assert.Equal(t, 1.5, got)

	// A referenced layer rejects edits.
	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{Path: []uint64{0}})
	require.Equal(t, http.StatusCreated, w.Code)
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/layers/0/atoms", SetAtomsRequest{
		Offset: 0,
		Atoms:  []*molecule.Atom{{Element: 1}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// A layer without molecule data rejects edits.
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/layers/1/atoms", SetAtomsRequest{
		Offset: 0,
		Atoms:  []*molecule.Atom{{Element: 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestExportSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		translationEnvelope(1),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{Path: []uint64{0}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decode[Snapshot](t, w)
	require.NotNil(t, snapshot.Base)
	assert.Equal(t, "water", snapshot.Base.Title)
	assert.Len(t, snapshot.Layers, 1)
	assert.Equal(t, [][]uint64{{0}}, snapshot.Stacks)
}

func TestEditInvalidatesResolverCache(t *testing.T) {
	router, _ := newTestRouter(t)
	createWorkspace(t, router, "demo")

	w := perform(t, router, http.MethodPost, "/v1/workspace/demo/layers", []map[string]any{
		fillEnvelope("before"),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{Path: []uint64{0}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/stacks/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[molecule.SparseMolecule](t, w)
	assert.Equal(t, "before", resolved.Title)

	// Drop the stack's claim on the layer, edit it, then re-reference.
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/stacks/0/slice", SliceStackRequest{Start: 0, End: 0})
	require.Equal(t, http.StatusOK, w.Code)
	w = perform(t, router, http.MethodPut, "/v1/workspace/demo/layers/0/atoms", SetAtomsRequest{
		Offset: 0,
		Atoms:  []*molecule.Atom{{Element: 1, Position: geometry.Vec3{Z: 5}}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = perform(t, router, http.MethodPost, "/v1/workspace/demo/stacks", CreateStackRequest{Path: []uint64{0}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, router, http.MethodGet, "/v1/workspace/demo/stacks/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved = decode[molecule.SparseMolecule](t, w)
	a, ok := resolved.Atoms.ReadAtom(0)
	require.True(t, ok)
	assert.Equal(t, geometry.Vec3{Z: 5}, a.Position)
}
