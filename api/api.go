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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/leadpipe"
	"github.com/blnkfinance/leadpipe/api/middleware"
	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/internal/apierror"
)

type Api struct {
	pipe   *leadpipe.LeadPipe
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	tenant := router.Group("/", middleware.TenantMiddleware())
	tenant.POST("/records", a.IngestRecord)
	tenant.POST("/records/batch", a.IngestBatch)

	tenant.GET("/pipeline/status", a.GetPipelineStatus)
	tenant.GET("/pipeline/records", a.ListPipelineRecords)
	tenant.POST("/pipeline/records/:id/retry", a.RetryRecord)

	router.GET("/transformers", a.ListTransformers)
	router.POST("/admin/recover", a.RecoverStuckRecords)
	return a.router
}

func NewAPI(pipe *leadpipe.LeadPipe) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{pipe: pipe, router: r}
}

// respondError writes err with the status of its kind.
func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{
		"error": apierror.Message(err),
		"code":  apierror.KindOf(err),
	})
}
