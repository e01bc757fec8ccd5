/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/leadpipe/api/middleware"
	model2 "github.com/blnkfinance/leadpipe/api/model"
)

func (a Api) GetPipelineStatus(c *gin.Context) {
	resp, err := a.pipe.GetStatus(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ListPipelineRecords(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = parsed
	}

	resp, err := a.pipe.ListRecords(c.Request.Context(), middleware.TenantID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) RetryRecord(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.pipe.RetryRecord(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// ListTransformers reports every registered entity type with its versions.
func (a Api) ListTransformers(c *gin.Context) {
	registry := a.pipe.Registry()

	resp := []model2.TransformerSummary{}
	for _, entityType := range registry.ListEntityTypes() {
		summary := model2.TransformerSummary{
			EntityType: entityType,
			Versions:   registry.ListVersions(entityType),
		}
		if latest, ok := registry.GetLatest(entityType); ok {
			summary.Latest = latest.Version()
		}
		resp = append(resp, summary)
	}

	c.JSON(http.StatusOK, resp)
}
