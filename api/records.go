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

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/leadpipe/api/middleware"
	model2 "github.com/blnkfinance/leadpipe/api/model"
)

func (a Api) IngestRecord(c *gin.Context) {
	var newRecord model2.CreateRecord
	if err := c.ShouldBindJSON(&newRecord); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newRecord.ValidateCreateRecord(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	record := newRecord.ToRawRecord(middleware.TenantID(c))
	resp, err := a.pipe.IngestRecord(c.Request.Context(), &record)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) IngestBatch(c *gin.Context) {
	var batch model2.CreateRecordBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := batch.ValidateCreateRecordBatch(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	tenantID := middleware.TenantID(c)
	resp, err := a.pipe.IngestBatch(c.Request.Context(), tenantID, batch.ToRawRecords(tenantID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"records": resp, "count": len(resp)})
}
