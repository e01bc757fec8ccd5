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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

const rawRecordColumns = `record_id, tenant_id, entity_type, workflow_id, source_table, raw_data, meta_data,
	processing_status, error_kind, error_message, processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func storeError(message string, err error) error {
	return apierror.NewAPIError(apierror.ErrStoreError, message, errors.Wrap(err, message))
}

func recordNotFound(recordID string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Record with ID %s not found", recordID), nil)
}

// CreateRawRecord stores a new pending record. Missing ids, source tables and
// timestamps are filled in on record.
func (d Datasource) CreateRawRecord(ctx context.Context, record *model.RawRecord) error {
	if record.RecordID == "" {
		record.RecordID = model.GenerateUUIDWithSuffix("rec")
	}
	if record.SourceTable == "" {
		record.SourceTable = model.DefaultSourceTable
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	record.ProcessingStatus = model.StatusPending

	rawJSON, err := json.Marshal(record.RawData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal raw data", err)
	}
	metaJSON, err := json.Marshal(record.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO raw_records (record_id, tenant_id, entity_type, workflow_id, source_table, raw_data, meta_data, processing_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, record.RecordID, record.TenantID, record.EntityType, nullString(record.WorkflowID), record.SourceTable,
		rawJSON, metaJSON, record.ProcessingStatus, record.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Record with ID %s already exists", record.RecordID), err)
		}
		return storeError("failed to create raw record", err)
	}
	return nil
}

func scanRawRecord(row rowScanner) (*model.RawRecord, error) {
	var (
		record                  model.RawRecord
		workflowID              sql.NullString
		errorKind, errorMessage sql.NullString
		processedAt             sql.NullTime
		rawJSON, metaJSON       []byte
	)
	err := row.Scan(&record.RecordID, &record.TenantID, &record.EntityType, &workflowID, &record.SourceTable,
		&rawJSON, &metaJSON, &record.ProcessingStatus, &errorKind, &errorMessage, &processedAt,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	record.WorkflowID = workflowID.String
	record.ErrorKind = errorKind.String
	record.ErrorMessage = errorMessage.String
	if processedAt.Valid {
		record.ProcessedAt = &processedAt.Time
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &record.RawData); err != nil {
			return nil, err
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &record.MetaData); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

func (d Datasource) getRawRecord(ctx context.Context, recordID, query string, args ...interface{}) (*model.RawRecord, error) {
	record, err := scanRawRecord(d.Conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recordNotFound(recordID)
		}
		return nil, storeError("failed to load raw record", err)
	}
	return record, nil
}

// GetRawRecord loads a record only when it belongs to tenantID.
func (d Datasource) GetRawRecord(ctx context.Context, tenantID, recordID string) (*model.RawRecord, error) {
	return d.getRawRecord(ctx, recordID,
		`SELECT `+rawRecordColumns+` FROM raw_records WHERE record_id = $1 AND tenant_id = $2`, recordID, tenantID)
}

func (d Datasource) GetRawRecordByID(ctx context.Context, recordID string) (*model.RawRecord, error) {
	return d.getRawRecord(ctx, recordID,
		`SELECT `+rawRecordColumns+` FROM raw_records WHERE record_id = $1`, recordID)
}

func (d Datasource) GetRawRecordsByIDs(ctx context.Context, recordIDs []string) ([]model.RawRecord, error) {
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT `+rawRecordColumns+` FROM raw_records WHERE record_id = ANY($1) ORDER BY created_at`, pq.Array(recordIDs))
	if err != nil {
		return nil, storeError("failed to load raw records", err)
	}
	return collectRawRecords(rows)
}

func collectRawRecords(rows *sql.Rows) ([]model.RawRecord, error) {
	defer rows.Close()

	records := []model.RawRecord{}
	for rows.Next() {
		record, err := scanRawRecord(rows)
		if err != nil {
			return nil, storeError("failed to scan raw record", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating raw records", err)
	}
	return records, nil
}

func (d Datasource) updateRecord(ctx context.Context, recordID, message, query string, args ...interface{}) error {
	result, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError(message, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeError(message, err)
	}
	if affected == 0 {
		return recordNotFound(recordID)
	}
	return nil
}

// MarkRecordProcessing moves a record into processing. Marking a record that is
// already processing is not an error.
func (d Datasource) MarkRecordProcessing(ctx context.Context, recordID string) error {
	return d.updateRecord(ctx, recordID, "failed to mark record processing", `
		UPDATE raw_records SET processing_status = $2, updated_at = $3 WHERE record_id = $1
	`, recordID, model.StatusProcessing, time.Now().UTC())
}

// MarkRecordProcessed stamps processed_at and clears any error left by an earlier attempt.
func (d Datasource) MarkRecordProcessed(ctx context.Context, recordID string) error {
	now := time.Now().UTC()
	return d.updateRecord(ctx, recordID, "failed to mark record processed", `
		UPDATE raw_records
		SET processing_status = $2, processed_at = $3, updated_at = $3, error_kind = NULL, error_message = NULL
		WHERE record_id = $1
	`, recordID, model.StatusProcessed, now)
}

func (d Datasource) MarkRecordFailed(ctx context.Context, recordID, kind, message string) error {
	return d.updateRecord(ctx, recordID, "failed to mark record failed", `
		UPDATE raw_records
		SET processing_status = $2, error_kind = $3, error_message = $4, updated_at = $5
		WHERE record_id = $1
	`, recordID, model.StatusFailed, kind, message, time.Now().UTC())
}

// ResetRecordForRetry puts a tenant's record back to pending regardless of its current state.
func (d Datasource) ResetRecordForRetry(ctx context.Context, tenantID, recordID string) error {
	return d.updateRecord(ctx, recordID, "failed to reset record", `
		UPDATE raw_records
		SET processing_status = $3, error_kind = NULL, error_message = NULL, updated_at = $4
		WHERE record_id = $1 AND tenant_id = $2
	`, recordID, tenantID, model.StatusPending, time.Now().UTC())
}

func (d Datasource) CountRecordsByStatus(ctx context.Context, tenantID string) (map[model.ProcessingStatus]int64, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT processing_status, COUNT(*) FROM raw_records WHERE tenant_id = $1 GROUP BY processing_status
	`, tenantID)
	if err != nil {
		return nil, storeError("failed to count raw records", err)
	}
	defer rows.Close()

	counts := make(map[model.ProcessingStatus]int64)
	for rows.Next() {
		var status model.ProcessingStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeError("failed to scan record counts", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating record counts", err)
	}
	return counts, nil
}

// ListRecords returns the newest records of a tenant without their payloads.
func (d Datasource) ListRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT record_id, entity_type, processing_status, created_at, processed_at, error_kind, error_message
		FROM raw_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, storeError("failed to list raw records", err)
	}
	defer rows.Close()

	records := []model.RawRecord{}
	for rows.Next() {
		var (
			record                  = model.RawRecord{TenantID: tenantID}
			processedAt             sql.NullTime
			errorKind, errorMessage sql.NullString
		)
		if err := rows.Scan(&record.RecordID, &record.EntityType, &record.ProcessingStatus, &record.CreatedAt,
			&processedAt, &errorKind, &errorMessage); err != nil {
			return nil, storeError("failed to scan raw record", err)
		}
		if processedAt.Valid {
			record.ProcessedAt = &processedAt.Time
		}
		record.ErrorKind = errorKind.String
		record.ErrorMessage = errorMessage.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating raw records", err)
	}
	return records, nil
}

// GetStuckRecords returns pending or processing records untouched since olderThan,
// oldest first.
func (d Datasource) GetStuckRecords(ctx context.Context, olderThan time.Time, limit int) ([]model.RawRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+rawRecordColumns+`
		FROM raw_records
		WHERE processing_status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4
	`, model.StatusPending, model.StatusProcessing, olderThan, limit)
	if err != nil {
		return nil, storeError("failed to load stuck records", err)
	}
	return collectRawRecords(rows)
}
