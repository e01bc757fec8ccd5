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

package database

import (
	"context"
	"time"

	"github.com/blnkfinance/leadpipe/model"
)

// IDataSource groups every store operation the pipeline needs.
type IDataSource interface {
	rawRecord
	lead
	schemaFingerprint
	transformerConfig
	Close() error
}

type rawRecord interface {
	CreateRawRecord(ctx context.Context, record *model.RawRecord) error
	GetRawRecord(ctx context.Context, tenantID, recordID string) (*model.RawRecord, error) // tenant scoped
	GetRawRecordByID(ctx context.Context, recordID string) (*model.RawRecord, error)
	GetRawRecordsByIDs(ctx context.Context, recordIDs []string) ([]model.RawRecord, error)
	MarkRecordProcessing(ctx context.Context, recordID string) error
	MarkRecordProcessed(ctx context.Context, recordID string) error
	MarkRecordFailed(ctx context.Context, recordID, kind, message string) error
	ResetRecordForRetry(ctx context.Context, tenantID, recordID string) error
	CountRecordsByStatus(ctx context.Context, tenantID string) (map[model.ProcessingStatus]int64, error)
	ListRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error)
	GetStuckRecords(ctx context.Context, olderThan time.Time, limit int) ([]model.RawRecord, error)
}

type lead interface {
	UpsertLead(ctx context.Context, tenantID string, lead *model.StructuredLead, descriptor model.TransformerDescriptor) (model.UpsertResult, error)
}

type schemaFingerprint interface {
	UpsertSchemaFingerprint(ctx context.Context, fingerprint *model.SchemaFingerprint) error
}

type transformerConfig interface {
	GetActiveTransformerConfigs(ctx context.Context) ([]model.TransformerConfig, error)
}
