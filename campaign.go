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

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

// QueueCampaign puts a campaign job on the campaign-execute queue.
func (l *LeadPipe) QueueCampaign(ctx context.Context, job model.CampaignJob) error {
	if err := job.Validate(); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	return l.queue.EnqueueCampaign(ctx, job)
}

// ProcessCampaign validates and logs campaign jobs. Message dispatch is not part of
// the pipeline.
func (l *LeadPipe) ProcessCampaign(_ context.Context, t *asynq.Task) error {
	var job model.CampaignJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": job.CampaignID,
		"tenant_id":   job.TenantID,
		"message_id":  job.MessageID,
		"leads":       len(job.LeadIDs),
	}).Info("campaign job received")
	return nil
}
