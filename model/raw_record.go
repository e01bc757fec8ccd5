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
package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ProcessingStatus is the lifecycle state of a raw record.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusFailed     ProcessingStatus = "failed"
)

const DefaultSourceTable = "raw_records"

// RawRecord is one ingested payload waiting to be turned into a structured record.
type RawRecord struct {
	RecordID         string                 `json:"record_id"`
	TenantID         string                 `json:"tenant_id"`
	EntityType       string                 `json:"entity_type"`
	WorkflowID       string                 `json:"workflow_id,omitempty"`
	SourceTable      string                 `json:"source_table"`
	RawData          map[string]interface{} `json:"raw_data,omitempty"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
	ProcessingStatus ProcessingStatus       `json:"processing_status"`
	ErrorKind        string                 `json:"error_kind,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ProcessedAt      *time.Time             `json:"processed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Validate checks the fields a caller has to supply when ingesting a record.
func (r RawRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.EntityType, validation.Required),
		validation.Field(&r.RawData, validation.NotNil),
	)
}

// PipelineStatus aggregates raw record states for a tenant together with the
// live depth of the transform queue.
type PipelineStatus struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	QueueDepth int   `json:"queue_depth"`
}

// Add records count records in the given state.
func (s *PipelineStatus) Add(status ProcessingStatus, count int64) {
	switch status {
	case StatusPending:
		s.Pending += count
	case StatusProcessing:
		s.Processing += count
	case StatusProcessed:
		s.Processed += count
	case StatusFailed:
		s.Failed += count
	}
}

// RetryResult is returned when a record is handed back to the transform queue.
type RetryResult struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
}
