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
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/internal/request"
	"github.com/blnkfinance/leadpipe/model"
)

const (
	EventLeadCreated  = "lead.created"
	EventLeadMerged   = "lead.merged"
	EventLeadReplaced = "lead.replaced"
	EventRecordFailed = "record.failed"
)

const webhookDeliveryTimeout = 2 * time.Minute

// NewWebhook represents the structure of a webhook notification.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// getEventFromOutcome maps an upsert outcome to the event announced for it.
// Skipped leads are not announced.
func getEventFromOutcome(outcome model.UpsertOutcome) (string, bool) {
	switch outcome {
	case model.OutcomeInserted:
		return EventLeadCreated, true
	case model.OutcomeMerged:
		return EventLeadMerged, true
	case model.OutcomeReplaced:
		return EventLeadReplaced, true
	default:
		return "", false
	}
}

// SendWebhook enqueues a webhook notification task. Nothing is queued when no
// webhook url is configured.
func (l *LeadPipe) SendWebhook(event string, payload interface{}) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	return l.queue.EnqueueWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
}

// emitEvent is SendWebhook for pipeline events; failures are logged only.
func (l *LeadPipe) emitEvent(event string, payload interface{}) {
	if err := l.SendWebhook(event, payload); err != nil {
		logrus.WithFields(logrus.Fields{"event": event}).Errorf("failed to queue webhook: %v", err)
	}
}

// processHTTP posts data to the configured endpoint with the configured headers.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	payload, err := request.ToJsonReq(data)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, payload)
	if err != nil {
		return backoff.Permanent(err)
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	resp, err := request.Call(req, nil)
	if err != nil && resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// deliverWebhook retries processHTTP with exponential backoff until it succeeds, a
// permanent error is returned or maxElapsed passes.
func deliverWebhook(ctx context.Context, conf *config.Configuration, data NewWebhook, maxElapsed time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		return processHTTP(ctx, conf, data)
	}, backoff.WithContext(policy, ctx))
}

// ProcessWebhook processes a webhook notification task from the queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logrus.Infof("Processing webhook: %s", payload.Event)
	if err := deliverWebhook(ctx, conf, payload, webhookDeliveryTimeout); err != nil {
		return err
	}
	logrus.Infof("Webhook notification sent successfully: %s", payload.Event)
	return nil
}
