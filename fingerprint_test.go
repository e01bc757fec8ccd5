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

package leadpipe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/leadpipe/model"
)

func TestBuildFingerprint(t *testing.T) {
	payloads := []map[string]interface{}{
		{"email": "ada@example.com", "company": map[string]interface{}{"name": "Engines", "size": float64(50)}},
		{"email": "grace@example.com", "company": map[string]interface{}{"name": "Navy", "size": "large"}, "notes": nil},
	}

	fp, err := BuildFingerprint("raw_records", "wf_1", payloads)
	require.NoError(t, err)

	assert.Equal(t, []string{"company.name", "company.size", "email", "notes"}, fp.Keys)
	assert.Equal(t, map[string]string{
		"company.name": "string",
		"company.size": "float64|string",
		"email":        "string",
		"notes":        "nil",
	}, fp.Types)
	assert.Equal(t, 2, fp.SampleCount)
	assert.Equal(t, "raw_records", fp.SourceTable)
	assert.Equal(t, "wf_1", fp.WorkflowID)
	assert.Len(t, fp.Hash, 32)
	assert.False(t, fp.LastSeenAt.IsZero())
}

func TestBuildFingerprint_HashIgnoresOrderAndValues(t *testing.T) {
	a, err := BuildFingerprint("raw_records", "wf_1", []map[string]interface{}{
		{"email": "ada@example.com", "firstName": "Ada"},
		{"email": "grace@example.com", "firstName": "Grace"},
	})
	require.NoError(t, err)

	b, err := BuildFingerprint("raw_records", "wf_1", []map[string]interface{}{
		{"firstName": "Linus", "email": "linus@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)

	c, err := BuildFingerprint("raw_records", "wf_1", []map[string]interface{}{
		{"firstName": "Linus", "email": "linus@example.com", "phone": "555"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestCaptureFingerprint(t *testing.T) {
	pipe, ds, _ := newTestPipe(t)
	ids := []string{"rec_1", "rec_2"}

	ds.On("GetRawRecordsByIDs", mock.Anything, ids).Return([]model.RawRecord{
		{RecordID: "rec_1", RawData: map[string]interface{}{"email": "ada@example.com"}},
		{RecordID: "rec_2", RawData: map[string]interface{}{"email": "grace@example.com", "tags": []interface{}{"vip"}}},
	}, nil)
	ds.On("UpsertSchemaFingerprint", mock.Anything, mock.MatchedBy(func(fp *model.SchemaFingerprint) bool {
		return fp.WorkflowID == "wf_1" && fp.SampleCount == 2 && len(fp.Keys) == 2 && fp.Types["tags.0"] == "string"
	})).Return(nil)

	fp, err := pipe.CaptureFingerprint(context.Background(), model.FingerprintJob{SourceTable: "raw_records", WorkflowID: "wf_1", SampleIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "tags.0"}, fp.Keys)
	ds.AssertExpectations(t)
}

func TestProcessFingerprint(t *testing.T) {
	pipe, ds, _ := newTestPipe(t)

	err := pipe.ProcessFingerprint(context.Background(), asynq.NewTask("schema-fingerprint", []byte("nope")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	payload, err := json.Marshal(model.FingerprintJob{SourceTable: "raw_records", WorkflowID: "wf_1"})
	require.NoError(t, err)
	assert.NoError(t, pipe.ProcessFingerprint(context.Background(), asynq.NewTask("schema-fingerprint", payload)))
	ds.AssertNotCalled(t, "GetRawRecordsByIDs", mock.Anything, mock.Anything)

	ds.On("GetRawRecordsByIDs", mock.Anything, []string{"rec_1"}).Return(nil, errors.New("connection refused"))
	payload, err = json.Marshal(model.FingerprintJob{SourceTable: "raw_records", WorkflowID: "wf_1", SampleIDs: []string{"rec_1"}})
	require.NoError(t, err)
	err = pipe.ProcessFingerprint(context.Background(), asynq.NewTask("schema-fingerprint", payload))
	assert.ErrorContains(t, err, "connection refused")
	ds.AssertNotCalled(t, "UpsertSchemaFingerprint", mock.Anything, mock.Anything)
}
