/*
Copyright 2024 Pledge Authors.

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
	"github.com/wacul/ptr"

	"github.com/pledgebet/pledge/config"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/goals", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"owner": Owner(c)})
	})
	return r
}

func serve(r *gin.Engine, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/goals", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		header       map[string]string
		expectedCode int
	}{
		{name: "valid key", secret: "master-key", header: map[string]string{KeyHeader: "master-key"}, expectedCode: http.StatusOK},
		{name: "invalid key", secret: "master-key", header: map[string]string{KeyHeader: "nope"}, expectedCode: http.StatusUnauthorized},
		{name: "missing key", secret: "master-key", expectedCode: http.StatusUnauthorized},
		{name: "not configured", header: map[string]string{KeyHeader: "master-key"}, expectedCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.MockConfig(&config.Configuration{Server: config.ServerConfig{Secure: true, SecretKey: tt.secret}})
			resp := serve(newRouter(SecretKeyAuthMiddleware()), tt.header)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestOwnerMiddleware(t *testing.T) {
	r := newRouter(OwnerMiddleware())

	resp := serve(r, map[string]string{OwnerHeader: " owner-1 "})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"owner":"owner-1"}`, resp.Body.String())

	resp = serve(r, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "INVALID_INPUT")
}

func TestRateLimitMiddleware(t *testing.T) {
	disabled := newRouter(RateLimitMiddleware(&config.Configuration{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(disabled, nil).Code)
	}

	limited := newRouter(RateLimitMiddleware(&config.Configuration{
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond:  ptr.Float64(1),
			Burst:              ptr.Int(1),
			CleanupIntervalSec: ptr.Int(60),
		},
	}))
	assert.Equal(t, http.StatusOK, serve(limited, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(limited, nil).Code)
}
