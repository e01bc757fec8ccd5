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
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/leadpipe/model"
)

// MaxBatchSize caps the records accepted by one batch ingestion call.
const MaxBatchSize = 500

type CreateRecord struct {
	EntityType  string                 `json:"entity_type"`
	WorkflowID  string                 `json:"workflow_id"`
	SourceTable string                 `json:"source_table"`
	RawData     map[string]interface{} `json:"raw_data"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

type CreateRecordBatch struct {
	Records []CreateRecord `json:"records"`
}

type TransformerSummary struct {
	EntityType string   `json:"entity_type"`
	Versions   []string `json:"versions"`
	Latest     string   `json:"latest"`
}

func (r *CreateRecord) ValidateCreateRecord() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.EntityType, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.RawData, validation.NotNil),
		validation.Field(&r.SourceTable, validation.Length(0, 128)),
	)
}

func (r *CreateRecord) ToRawRecord(tenantID string) model.RawRecord {
	return model.RawRecord{
		TenantID:    tenantID,
		EntityType:  r.EntityType,
		WorkflowID:  r.WorkflowID,
		SourceTable: r.SourceTable,
		RawData:     r.RawData,
		MetaData:    r.MetaData,
	}
}

func (b *CreateRecordBatch) ValidateCreateRecordBatch() error {
	err := validation.ValidateStruct(b,
		validation.Field(&b.Records, validation.Required, validation.Length(1, MaxBatchSize)),
	)
	if err != nil {
		return err
	}
	for i := range b.Records {
		if err := b.Records[i].ValidateCreateRecord(); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
	}
	return nil
}

func (b *CreateRecordBatch) ToRawRecords(tenantID string) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(b.Records))
	for i := range b.Records {
		records = append(records, b.Records[i].ToRawRecord(tenantID))
	}
	return records
}
