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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	redlock "github.com/blnkfinance/leadpipe/internal/lock"
	"github.com/blnkfinance/leadpipe/model"
)

func stuckRecords() []model.RawRecord {
	return []model.RawRecord{
		{RecordID: "rec_1", TenantID: "tenant_a", EntityType: "lead", ProcessingStatus: model.StatusProcessing, RawData: map[string]interface{}{"email": "ada@example.com"}},
		{RecordID: "rec_2", TenantID: "tenant_b", EntityType: "lead", ProcessingStatus: model.StatusPending, RawData: map[string]interface{}{"email": "grace@example.com"}},
	}
}

func TestRecordRecoveryProcessor_StartStop(t *testing.T) {
	pipe, _, _ := newTestPipe(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	processor := NewRecordRecoveryProcessor(pipe)
	assert.False(t, processor.IsRunning())

	processor.Start(context.Background())
	processor.Start(context.Background())
	assert.True(t, processor.IsRunning())

	processor.Stop()
	processor.Stop()
	assert.False(t, processor.IsRunning())
}

func TestRecoverStuckRecords(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)

	ds.On("GetStuckRecords", mock.Anything, mock.MatchedBy(func(olderThan time.Time) bool {
		return time.Since(olderThan) >= minRecoveryThreshold
	}), 100).Return(stuckRecords(), nil)
	ds.On("ResetRecordForRetry", mock.Anything, "tenant_a", "rec_1").Return(nil)
	ds.On("ResetRecordForRetry", mock.Anything, "tenant_b", "rec_2").Return(nil)

	recovered, err := pipe.RecoverStuckRecords(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.Len(t, pendingTasks(t, mr, "transform"), 2)
	ds.AssertExpectations(t)
}

func TestRecoverStuckRecords_PartialFailure(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)

	ds.On("GetStuckRecords", mock.Anything, mock.Anything, 100).Return(stuckRecords(), nil)
	ds.On("ResetRecordForRetry", mock.Anything, "tenant_a", "rec_1").Return(errors.New("connection reset"))
	ds.On("ResetRecordForRetry", mock.Anything, "tenant_b", "rec_2").Return(nil)

	recovered, err := pipe.RecoverStuckRecords(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Len(t, pendingTasks(t, mr, "transform"), 1)
}

func TestRecoverStuckRecords_Nothing(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	ds.On("GetStuckRecords", mock.Anything, mock.Anything, 100).Return(nil, nil)

	recovered, err := pipe.RecoverStuckRecords(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, recovered)
	assert.Empty(t, pendingTasks(t, mr, "transform"))
}

func TestRecoverStuckRecords_StoreError(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	ds.On("GetStuckRecords", mock.Anything, mock.Anything, 100).Return(nil, errors.New("connection refused"))

	recovered, err := pipe.RecoverStuckRecords(context.Background(), time.Hour)
	assert.EqualError(t, err, "connection refused")
	assert.Zero(t, recovered)
	assert.Empty(t, pendingTasks(t, mr, "transform"))
	ds.AssertNotCalled(t, "ResetRecordForRetry", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_StoreErrorReleasesLock(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	ds.On("GetStuckRecords", mock.Anything, mock.Anything, 100).Return(nil, errors.New("connection refused"))

	processor := NewRecordRecoveryProcessor(pipe)
	assert.Zero(t, processor.sweep(context.Background()))
	assert.False(t, mr.Exists(recoveryLockKey))
}

func TestSweep_ReleasesLock(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	ds.On("GetStuckRecords", mock.Anything, mock.Anything, 100).Return(stuckRecords()[:1], nil)
	ds.On("ResetRecordForRetry", mock.Anything, "tenant_a", "rec_1").Return(nil)

	processor := NewRecordRecoveryProcessor(pipe)
	assert.Equal(t, 1, processor.sweep(context.Background()))
	assert.False(t, mr.Exists(recoveryLockKey))
}

func TestSweep_SkipsWhenLockHeld(t *testing.T) {
	pipe, ds, mr := newTestPipe(t)
	require.NoError(t, mr.Set(recoveryLockKey, "another-instance"))

	processor := NewRecordRecoveryProcessor(pipe)
	assert.Zero(t, processor.sweep(context.Background()))
	ds.AssertNotCalled(t, "GetStuckRecords", mock.Anything, mock.Anything, mock.Anything)

	value, err := mr.Get(recoveryLockKey)
	require.NoError(t, err)
	assert.Equal(t, "another-instance", value)
}

func TestKeepLock_ExtendsTTL(t *testing.T) {
	pipe, _, mr := newTestPipe(t)

	processor := NewRecordRecoveryProcessor(pipe)
	processor.lockTTL = 200 * time.Millisecond

	locker := redlock.NewLocker(pipe.redis.Client(), recoveryLockKey, "sweeper-1")
	acquired, err := locker.TryLock(context.Background(), processor.lockTTL)
	require.NoError(t, err)
	require.True(t, acquired)
	mr.FastForward(150 * time.Millisecond)

	stop := processor.keepLock(context.Background(), locker)
	defer stop()

	assert.Eventually(t, func() bool {
		return mr.TTL(recoveryLockKey) > 100*time.Millisecond
	}, time.Second, 10*time.Millisecond)
}
