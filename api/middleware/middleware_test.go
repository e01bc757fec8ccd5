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
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/leadpipe/config"
)

func tenantRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TenantMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, TenantID(c))
	})
	return r
}

func TestTenantMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		tenant       string
		expectedCode int
		expectedBody string
	}{
		{name: "With tenant", tenant: "tenant_a", expectedCode: http.StatusOK, expectedBody: "tenant_a"},
		{name: "Trimmed tenant", tenant: "  tenant_b ", expectedCode: http.StatusOK, expectedBody: "tenant_b"},
		{name: "Blank tenant", tenant: "   ", expectedCode: http.StatusBadRequest},
		{name: "No tenant", expectedCode: http.StatusBadRequest},
	}

	router := tenantRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.tenant != "" {
				req.Header.Set(TenantHeader, tt.tenant)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, tt.expectedCode, resp.Code)
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, resp.Body.String())
			}
		})
	}
}

func TestSecretKeyAuthMiddleware_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.MockConfig(&config.Configuration{Server: config.ServerConfig{Secure: true}})

	r := gin.New()
	r.Use(SecretKeyAuthMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(KeyHeader, "anything")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(&config.Configuration{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
