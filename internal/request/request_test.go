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

package request_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/leadpipe/internal/request"
)

func TestToJsonReq(t *testing.T) {
	payload := map[string]string{"key": "value"}

	buf, err := request.ToJsonReq(payload)
	require.NoError(t, err)

	expected, _ := json.Marshal(payload)
	assert.Equal(t, expected, buf.Bytes())

	buf, err = request.ToJsonReq(map[string]interface{}{"key": make(chan int)})
	assert.Error(t, err)
	assert.Nil(t, buf)
}

func TestCall_DecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	var response map[string]string
	resp, err := request.Call(req, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", response["status"])
}

func TestCall_NilResponseIgnoresBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	_, err = request.Call(req, nil)
	assert.NoError(t, err)
}

func TestCall_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			_, _ = w.Write([]byte(`{malformed`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/broken", nil)
	var response map[string]string
	resp, err := request.Call(req, &response)
	assert.Error(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/down", nil)
	resp, err = request.Call(req, nil)
	assert.ErrorContains(t, err, "returned 502: upstream down")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, "http://invalid-url.invalid", nil)
	resp, err = request.Call(req, nil)
	assert.Error(t, err)
	assert.Nil(t, resp)
}
