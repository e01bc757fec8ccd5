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

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/leadpipe/model"
)

// MockDataSource is a testify mock of database.IDataSource.
type MockDataSource struct {
	mock.Mock
}

// Raw record methods

func (m *MockDataSource) CreateRawRecord(ctx context.Context, record *model.RawRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) GetRawRecord(ctx context.Context, tenantID, recordID string) (*model.RawRecord, error) {
	args := m.Called(ctx, tenantID, recordID)
	record, _ := args.Get(0).(*model.RawRecord)
	return record, args.Error(1)
}

func (m *MockDataSource) GetRawRecordByID(ctx context.Context, recordID string) (*model.RawRecord, error) {
	args := m.Called(ctx, recordID)
	record, _ := args.Get(0).(*model.RawRecord)
	return record, args.Error(1)
}

func (m *MockDataSource) GetRawRecordsByIDs(ctx context.Context, recordIDs []string) ([]model.RawRecord, error) {
	args := m.Called(ctx, recordIDs)
	records, _ := args.Get(0).([]model.RawRecord)
	return records, args.Error(1)
}

func (m *MockDataSource) MarkRecordProcessing(ctx context.Context, recordID string) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

func (m *MockDataSource) MarkRecordProcessed(ctx context.Context, recordID string) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

func (m *MockDataSource) MarkRecordFailed(ctx context.Context, recordID, kind, message string) error {
	args := m.Called(ctx, recordID, kind, message)
	return args.Error(0)
}

func (m *MockDataSource) ResetRecordForRetry(ctx context.Context, tenantID, recordID string) error {
	args := m.Called(ctx, tenantID, recordID)
	return args.Error(0)
}

func (m *MockDataSource) CountRecordsByStatus(ctx context.Context, tenantID string) (map[model.ProcessingStatus]int64, error) {
	args := m.Called(ctx, tenantID)
	counts, _ := args.Get(0).(map[model.ProcessingStatus]int64)
	return counts, args.Error(1)
}

func (m *MockDataSource) ListRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error) {
	args := m.Called(ctx, tenantID, limit)
	records, _ := args.Get(0).([]model.RawRecord)
	return records, args.Error(1)
}

func (m *MockDataSource) GetStuckRecords(ctx context.Context, olderThan time.Time, limit int) ([]model.RawRecord, error) {
	args := m.Called(ctx, olderThan, limit)
	records, _ := args.Get(0).([]model.RawRecord)
	return records, args.Error(1)
}

// Lead methods

func (m *MockDataSource) UpsertLead(ctx context.Context, tenantID string, lead *model.StructuredLead, descriptor model.TransformerDescriptor) (model.UpsertResult, error) {
	args := m.Called(ctx, tenantID, lead, descriptor)
	return args.Get(0).(model.UpsertResult), args.Error(1)
}

// Fingerprint and config methods

func (m *MockDataSource) UpsertSchemaFingerprint(ctx context.Context, fingerprint *model.SchemaFingerprint) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

func (m *MockDataSource) GetActiveTransformerConfigs(ctx context.Context) ([]model.TransformerConfig, error) {
	args := m.Called(ctx)
	configs, _ := args.Get(0).([]model.TransformerConfig)
	return configs, args.Error(1)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
