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

	"golang.org/x/sync/errgroup"

	"github.com/blnkfinance/leadpipe/model"
)

const retryQueuedStatus = "queued"

// GetStatus counts the tenant's records per processing state and reads the live
// depth of the transform queue. Both lookups run concurrently.
func (l *LeadPipe) GetStatus(ctx context.Context, tenantID string) (model.PipelineStatus, error) {
	ctx, span := tracer.Start(ctx, "GetStatus")
	defer span.End()

	var (
		counts map[model.ProcessingStatus]int64
		depth  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = l.datasource.CountRecordsByStatus(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		depth, err = l.queue.QueueDepth(l.config.Queue.TransformQueue)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return model.PipelineStatus{}, err
	}

	status := model.PipelineStatus{QueueDepth: depth}
	for state, count := range counts {
		status.Add(state, count)
	}
	return status, nil
}

// ListRecords returns the tenant's most recent records. The limit defaults to the
// configured list limit and is capped at the configured maximum.
func (l *LeadPipe) ListRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "ListRecords")
	defer span.End()

	return l.datasource.ListRecords(ctx, tenantID, l.clampLimit(limit))
}

func (l *LeadPipe) clampLimit(limit int) int {
	if limit <= 0 {
		return l.config.Pipeline.ListLimit
	}
	if limit > l.config.Pipeline.MaxListLimit {
		return l.config.Pipeline.MaxListLimit
	}
	return limit
}

// RetryRecord resets a tenant's record to pending and queues a new transform for it,
// whatever state it is in. An unknown record is reported without changing anything.
func (l *LeadPipe) RetryRecord(ctx context.Context, tenantID, recordID string) (model.RetryResult, error) {
	ctx, span := tracer.Start(ctx, "RetryRecord")
	defer span.End()

	record, err := l.datasource.GetRawRecord(ctx, tenantID, recordID)
	if err != nil {
		span.RecordError(err)
		return model.RetryResult{}, err
	}

	if err := l.datasource.ResetRecordForRetry(ctx, tenantID, recordID); err != nil {
		return model.RetryResult{}, err
	}

	if err := l.queue.RequeueTransform(ctx, transformJobFor(record)); err != nil {
		return model.RetryResult{}, err
	}
	return model.RetryResult{RecordID: recordID, Status: retryQueuedStatus}, nil
}

func transformJobFor(record *model.RawRecord) model.TransformJob {
	return model.TransformJob{
		RecordID:    record.RecordID,
		TenantID:    record.TenantID,
		EntityType:  record.EntityType,
		WorkflowID:  record.WorkflowID,
		SourceTable: record.SourceTable,
	}
}
