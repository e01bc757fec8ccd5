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

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/internal/notification"
	"github.com/blnkfinance/leadpipe/model"
)

// TransformRecord runs one raw record through its transformer and upserts the
// resulting lead. A record that is already processed is left alone.
func (l *LeadPipe) TransformRecord(ctx context.Context, job model.TransformJob) (model.UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "TransformRecord")
	defer span.End()
	span.SetAttributes(attribute.String("record.id", job.RecordID), attribute.String("tenant.id", job.TenantID))

	record, err := l.datasource.GetRawRecord(ctx, job.TenantID, job.RecordID)
	if err != nil {
		span.RecordError(err)
		return model.UpsertResult{}, err
	}

	if record.ProcessingStatus == model.StatusProcessed {
		logrus.Infof("record %s already processed, skipping", record.RecordID)
		return model.UpsertResult{}, nil
	}

	if err := l.datasource.MarkRecordProcessing(ctx, record.RecordID); err != nil {
		return model.UpsertResult{}, err
	}

	fail := func(cause error) (model.UpsertResult, error) {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		kind := string(apierror.KindOf(cause))
		message := apierror.Message(cause)
		if err := l.datasource.MarkRecordFailed(ctx, record.RecordID, kind, message); err != nil {
			logrus.Errorf("failed to mark record %s as failed: %v", record.RecordID, err)
		}
		l.emitEvent(EventRecordFailed, map[string]interface{}{
			"record_id":     record.RecordID,
			"tenant_id":     record.TenantID,
			"error_kind":    kind,
			"error_message": message,
		})
		return model.UpsertResult{}, cause
	}

	entityType := job.EntityType
	if entityType == "" {
		entityType = record.EntityType
	}
	transformer, err := l.registry.Resolve(entityType, "")
	if err != nil {
		return fail(err)
	}

	lead, err := transformer.Transform(ctx, record.RawData)
	if err != nil {
		return fail(err)
	}
	if lead.SourceWorkflow == nil && record.WorkflowID != "" {
		workflowID := record.WorkflowID
		lead.SourceWorkflow = &workflowID
	}

	result, err := l.datasource.UpsertLead(ctx, record.TenantID, lead, transformer.Descriptor())
	if err != nil {
		return fail(err)
	}

	if err := l.datasource.MarkRecordProcessed(ctx, record.RecordID); err != nil {
		return model.UpsertResult{}, err
	}

	if event, ok := getEventFromOutcome(result.Outcome); ok {
		lead.LeadID = result.LeadID
		lead.TenantID = record.TenantID
		l.emitEvent(event, lead)
	}

	logrus.WithFields(logrus.Fields{
		"record_id": record.RecordID,
		"lead_id":   result.LeadID,
		"outcome":   result.Outcome,
		"version":   transformer.Version(),
	}).Info(" [*] Record transformed")
	return result, nil
}

// ProcessTransform handles the transform queue. Failures that would repeat on the
// same input skip the remaining retries.
func (l *LeadPipe) ProcessTransform(ctx context.Context, t *asynq.Task) error {
	var job model.TransformJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		logrus.Error(err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	_, err := l.TransformRecord(ctx, job)
	if err == nil {
		return nil
	}
	if apierror.IsDeterministic(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	logrus.Infof("record %s pushed back for retry due to error: %v", job.RecordID, err)
	return err
}

// HandleTaskError notifies operators about tasks that used up their retries on a
// non-deterministic error.
func HandleTaskError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if apierror.IsDeterministic(err) || retried < maxRetry {
		return
	}
	notification.NotifyError(fmt.Errorf("task %s exhausted %d retries: %w", task.Type(), maxRetry, err))
}
