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
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

// IngestRecord stores record as pending and queues its transform. The record is
// returned with its generated id. A failed enqueue is logged, not returned: the
// record stays pending and can be retried or picked up by recovery.
func (l *LeadPipe) IngestRecord(ctx context.Context, record *model.RawRecord) (*model.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "IngestRecord")
	defer span.End()

	if err := l.storeRecord(ctx, record); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if record.WorkflowID != "" {
		l.queueFingerprints(ctx, []model.RawRecord{*record})
	}
	return record, nil
}

// IngestBatch stores and queues every record of a batch for one tenant. Records are
// validated up front so a bad item rejects the batch before anything is written.
func (l *LeadPipe) IngestBatch(ctx context.Context, tenantID string, records []model.RawRecord) ([]model.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "IngestBatch")
	defer span.End()

	if len(records) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "batch must contain at least one record", nil)
	}
	for i := range records {
		records[i].TenantID = tenantID
		if err := records[i].Validate(); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("record %d: %s", i, err.Error()), nil)
		}
	}

	stored := make([]model.RawRecord, 0, len(records))
	for i := range records {
		if err := l.storeRecord(ctx, &records[i]); err != nil {
			span.RecordError(err)
			return stored, err
		}
		stored = append(stored, records[i])
	}

	l.queueFingerprints(ctx, stored)
	return stored, nil
}

func (l *LeadPipe) storeRecord(ctx context.Context, record *model.RawRecord) error {
	if err := record.Validate(); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if err := l.datasource.CreateRawRecord(ctx, record); err != nil {
		return err
	}

	if err := l.queue.EnqueueTransform(ctx, transformJobFor(record)); err != nil {
		logrus.WithFields(logrus.Fields{"record_id": record.RecordID}).Errorf("failed to queue transform: %v", err)
	}
	return nil
}

// queueFingerprints queues one sampling job per source table and workflow found in
// records. Records without a workflow are not fingerprinted.
func (l *LeadPipe) queueFingerprints(ctx context.Context, records []model.RawRecord) {
	withWorkflow := lo.Filter(records, func(r model.RawRecord, _ int) bool { return r.WorkflowID != "" })
	groups := lo.GroupBy(withWorkflow, func(r model.RawRecord) string { return r.SourceTable + "\x00" + r.WorkflowID })

	for _, group := range groups {
		sample := lo.Map(group, func(r model.RawRecord, _ int) string { return r.RecordID })
		if size := l.config.Fingerprint.SampleSize; len(sample) > size {
			sample = sample[:size]
		}
		job := model.FingerprintJob{
			SourceTable: group[0].SourceTable,
			WorkflowID:  group[0].WorkflowID,
			SampleIDs:   sample,
		}
		if err := l.queue.EnqueueFingerprint(ctx, job); err != nil {
			logrus.WithFields(logrus.Fields{"workflow_id": job.WorkflowID}).Errorf("failed to queue fingerprint: %v", err)
		}
	}
}
