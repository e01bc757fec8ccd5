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
	"time"

	"github.com/gin-gonic/gin"
)

// RecoverStuckRecords re-queues pending or processing records older than the
// threshold_seconds query parameter, across all tenants.
func (a Api) RecoverStuckRecords(c *gin.Context) {
	threshold := 0
	if raw := c.Query("threshold_seconds"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold_seconds must be a positive number"})
			return
		}
		threshold = parsed
	}

	recovered, err := a.pipe.RecoverStuckRecords(c.Request.Context(), time.Duration(threshold)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
