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
	"github.com/gin-gonic/gin"

	"github.com/molstack/molstack/services/workspace/telemetry"
)

// SetupRoutes registers the workspace API on the router.
func (s *Service) SetupRoutes(router *gin.Engine) {
	router.Use(RequestIDMiddleware(s.log))
	if s.metrics != nil {
		router.Use(s.metrics.GinMiddleware())
	}

	router.GET("/health", s.handleHealth)
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/workspace", s.handleCreateWorkspace)
		v1.DELETE("/workspace/:ws", s.handleRemoveWorkspace)

		ws := v1.Group("/workspace/:ws")
		{
			stacks := ws.Group("/stacks")
			{
				stacks.POST("", s.handleCreateStack)
				stacks.GET("", s.handleListStacks)
				stacks.GET("/:id", s.handleReadStack)
				stacks.POST("/:id/clone", s.handleCloneStack)
				stacks.PUT("/:id/slice", s.handleSliceStack)
				stacks.PUT("/:id/add", s.handleExtendStack)
			}
			layers := ws.Group("/layers")
			{
				layers.POST("", s.handleCreateLayers)
				layers.GET("", s.handleListLayers)
				layers.PUT("/remove_unused", s.handleRemoveUnusedLayers)
				layers.GET("/:id", s.handleReadLayer)
				layers.PUT("/:id/atoms", s.handleSetLayerAtoms)
				layers.PUT("/:id/bonds", s.handleSetLayerBonds)
			}
			ws.GET("/export", s.handleExport)
		}
	}
}
