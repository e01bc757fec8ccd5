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
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/leadpipe/database/mocks"
	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

// assignIDs mimics the datasource filling in ids on insert.
func assignIDs(ds *mocks.MockDataSource) {
	n := 0
	ds.On("CreateRawRecord", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		n++
		record := args.Get(1).(*model.RawRecord)
		record.RecordID = fmt.Sprintf("rec_%d", n)
		if record.SourceTable == "" {
			record.SourceTable = model.DefaultSourceTable
		}
		record.ProcessingStatus = model.StatusPending
	}).Return(nil)
}

func TestIngestRecord(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	assignIDs(ds)

	record, err := pipe.IngestRecord(context.Background(), &model.RawRecord{
		TenantID:   "tenant_a",
		EntityType: "lead",
		RawData:    map[string]interface{}{"email": gofakeit.Email()},
	})
	require.NoError(t, err)
	assert.Equal(t, "rec_1", record.RecordID)
	assert.Equal(t, model.StatusPending, record.ProcessingStatus)

	assert.Equal(t, []string{"rec_1"}, pendingTasks(t, mr, "transform"))
	assert.Empty(t, pendingTasks(t, mr, "schema-fingerprint"))
}

func TestIngestRecord_Invalid(t *testing.T) {
	pipe, ds, _ := newTestPipe(t)

	_, err := pipe.IngestRecord(context.Background(), &model.RawRecord{TenantID: "tenant_a", RawData: map[string]interface{}{}})
	require.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.KindOf(err))
	ds.AssertNotCalled(t, "CreateRawRecord", mock.Anything, mock.Anything)
}

func TestIngestRecord_EnqueueFailureIsNotReturned(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	assignIDs(ds)
	mr.Close()

	record, err := pipe.IngestRecord(context.Background(), &model.RawRecord{
		TenantID:   "tenant_a",
		EntityType: "lead",
		RawData:    map[string]interface{}{"email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rec_1", record.RecordID)
	ds.AssertNumberOfCalls(t, "CreateRawRecord", 1)
}

func TestIngestBatch_QueuesFingerprintSample(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	assignIDs(ds)

	batch := []model.RawRecord{
		{EntityType: "lead", WorkflowID: "wf_1", RawData: map[string]interface{}{"email": gofakeit.Email()}},
		{EntityType: "lead", WorkflowID: "wf_1", RawData: map[string]interface{}{"email": gofakeit.Email()}},
		{EntityType: "lead", WorkflowID: "wf_1", RawData: map[string]interface{}{"email": gofakeit.Email()}},
		{EntityType: "lead", RawData: map[string]interface{}{"email": gofakeit.Email()}},
	}

	stored, err := pipe.IngestBatch(context.Background(), "tenant_a", batch)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, r := range stored {
		assert.Equal(t, "tenant_a", r.TenantID)
	}

	assert.Len(t, pendingTasks(t, mr, "transform"), 4)

	fingerprintTasks := pendingTasks(t, mr, "schema-fingerprint")
	require.Len(t, fingerprintTasks, 1)

	msg, err := pipe.queue.Inspector.GetTaskInfo("schema-fingerprint", fingerprintTasks[0])
	require.NoError(t, err)
	var job model.FingerprintJob
	require.NoError(t, json.Unmarshal(msg.Payload, &job))
	assert.Equal(t, "wf_1", job.WorkflowID)
	assert.Equal(t, model.DefaultSourceTable, job.SourceTable)
	assert.Equal(t, []string{"rec_1", "rec_2"}, job.SampleIDs)
}

func TestIngestBatch_RejectsBadItemBeforeWriting(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)

	batch := []model.RawRecord{
		{EntityType: "lead", RawData: map[string]interface{}{"email": "ada@example.com"}},
		{RawData: map[string]interface{}{"email": "grace@example.com"}},
	}

	_, err := pipe.IngestBatch(context.Background(), "tenant_a", batch)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.KindOf(err))
	assert.Contains(t, apierror.Message(err), "record 1")
	ds.AssertNotCalled(t, "CreateRawRecord", mock.Anything, mock.Anything)
	assert.Empty(t, pendingTasks(t, mr, "transform"))
}

func TestIngestBatch_Empty(t *testing.T) {
	pipe, _, _ := newTestPipe(t)

	_, err := pipe.IngestBatch(context.Background(), "tenant_a", nil)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.KindOf(err))
}
