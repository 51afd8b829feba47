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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/molstack/molstack/pkg/validation"
	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/storage"
)

// renderError maps domain errors onto HTTP statuses with the uniform
// error body.
func (s *Service) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var stackErr *StackOutOfRangeError
	var sliceErr *SliceRangeError
	var inUseErr *LayerInUseError
	var notEditableErr *LayerNotEditableError
	var selectionErr *layer.SelectionError
	var nameErr *validation.InvalidNameError
	switch {
	case errors.As(err, &nameErr):
		status = http.StatusBadRequest
	case errors.Is(err, ErrWorkspaceExists):
		status = http.StatusConflict
	case errors.Is(err, ErrNoSuchWorkspace):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrNoSuchLayer):
		status = http.StatusNotFound
	case errors.As(err, &stackErr):
		status = http.StatusNotFound
	case errors.As(err, &sliceErr):
		status = http.StatusBadRequest
	case errors.As(err, &inUseErr):
		status = http.StatusConflict
	case errors.As(err, &notEditableErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &selectionErr):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "request_id", requestID(c), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), RequestID: requestID(c)})
}

func (s *Service) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: requestID(c)})
}

// ws resolves the :ws path parameter; on failure it renders a 404 and
// returns nil.
func (s *Service) ws(c *gin.Context) *Workspace {
	w, err := s.Workspace(c.Param("ws"))
	if err != nil {
		s.renderError(c, err)
		return nil
	}
	return w
}

// stackID parses the :id path parameter; on failure it renders a 400
// and returns false.
func stackID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid stack id", RequestID: requestID(c)})
		return 0, false
	}
	return id, true
}

// layerID parses the :id path parameter as a layer ID.
func layerID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid layer id", RequestID: requestID(c)})
		return 0, false
	}
	return id, true
}

// decodeLayers reads a JSON array of tagged layer envelopes.
func decodeLayers(c *gin.Context) ([]layer.Layer, error) {
	var raw []json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, err
	}
	layers := make([]layer.Layer, len(raw))
	for i, item := range raw {
		l, err := layer.Unmarshal(item)
		if err != nil {
			return nil, err
		}
		layers[i] = l
	}
	return layers, nil
}

func (s *Service) handleCreateWorkspace(c *gin.Context) {
	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.CreateWorkspace(req.Name, req.Base); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Service) handleRemoveWorkspace(c *gin.Context) {
	if err := s.RemoveWorkspace(c.Param("ws")); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Service) handleCreateStack(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	var req CreateStackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	c.JSON(http.StatusCreated, StackResponse{StackID: w.AddStack(req.Path)})
}

func (s *Service) handleListStacks(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	c.JSON(http.StatusOK, w.Stacks())
}

func (s *Service) handleReadStack(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := stackID(c)
	if !ok {
		return
	}
	start := time.Now()
	resolved, err := w.ResolveStack(c.Request.Context(), id)
	if s.metrics != nil {
		s.metrics.ObserveResolution(c.Request.Context(), time.Since(start), err)
	}
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (s *Service) handleCloneStack(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := stackID(c)
	if !ok {
		return
	}
	req := CloneStackRequest{Copies: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	ids, err := w.CloneStack(id, req.Copies)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CloneStackResponse{StackIDs: ids})
}

func (s *Service) handleSliceStack(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := stackID(c)
	if !ok {
		return
	}
	var req SliceStackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := w.SliceStack(id, req.Start, req.End); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Service) handleExtendStack(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := stackID(c)
	if !ok {
		return
	}
	layers, err := decodeLayers(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	newID, err := w.ExtendStack(c.Request.Context(), id, layers)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.LayersCreatedTotal.Add(c.Request.Context(), int64(len(layers)))
	}
	c.JSON(http.StatusCreated, StackResponse{StackID: newID})
}

func (s *Service) handleCreateLayers(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	layers, err := decodeLayers(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	start, end, err := w.CreateLayers(c.Request.Context(), layers)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.LayersCreatedTotal.Add(c.Request.Context(), int64(len(layers)))
	}
	c.JSON(http.StatusCreated, CreateLayersResponse{Start: start, End: end})
}

func (s *Service) handleListLayers(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	ids, err := w.LayerIDs(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, LayerIDsResponse{LayerIDs: ids})
}

func (s *Service) handleReadLayer(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := layerID(c)
	if !ok {
		return
	}
	l, err := w.ReadLayer(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	envelope, err := layer.Marshal(l)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", envelope)
}

func (s *Service) handleRemoveUnusedLayers(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	removed, err := w.RemoveUnusedLayers(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, RemoveUnusedResponse{Removed: removed})
}

func (s *Service) handleSetLayerAtoms(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := layerID(c)
	if !ok {
		return
	}
	var req SetAtomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := w.SetLayerAtoms(c.Request.Context(), id, req.Offset, req.Atoms); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Service) handleSetLayerBonds(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	id, ok := layerID(c)
	if !ok {
		return
	}
	var req SetBondsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := w.SetLayerBonds(c.Request.Context(), id, req.Bonds); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Service) handleExport(c *gin.Context) {
	w := s.ws(c)
	if w == nil {
		return
	}
	snapshot, err := w.Export(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
