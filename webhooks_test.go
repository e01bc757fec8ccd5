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
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/model"
)

const testHookURL = "https://hooks.example.com/leadpipe"

func withWebhook(cfg *config.Configuration) {
	cfg.Notification.Webhook = config.WebhookConfig{
		Url:     testHookURL,
		Headers: map[string]string{"X-Signature": "s3cr3t"},
	}
}

func hookConfig() *config.Configuration {
	cfg := testConfig("localhost:6379")
	withWebhook(cfg)
	return cfg
}

func TestGetEventFromOutcome(t *testing.T) {
	tests := []struct {
		outcome model.UpsertOutcome
		event   string
		ok      bool
	}{
		{model.OutcomeInserted, EventLeadCreated, true},
		{model.OutcomeMerged, EventLeadMerged, true},
		{model.OutcomeReplaced, EventLeadReplaced, true},
		{model.OutcomeSkipped, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			event, ok := getEventFromOutcome(tt.outcome)
			assert.Equal(t, tt.event, event)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSendWebhook_NoURL(t *testing.T) {
	pipe, _, mr := newTestPipe(t)

	require.NoError(t, pipe.SendWebhook(EventLeadCreated, map[string]string{"lead_id": "lead_1"}))
	assert.Empty(t, pendingTasks(t, mr, "webhooks"))
}

func TestSendWebhook(t *testing.T) {
	pipe, _, mr := newTestPipe(t, withWebhook)

	require.NoError(t, pipe.SendWebhook(EventLeadCreated, map[string]string{"lead_id": "lead_1"}))

	tasks := pendingTasks(t, mr, "webhooks")
	require.Len(t, tasks, 1)

	info, err := pipe.queue.Inspector.GetTaskInfo("webhooks", tasks[0])
	require.NoError(t, err)
	var hook struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(info.Payload, &hook))
	assert.Equal(t, EventLeadCreated, hook.Event)
	assert.Equal(t, "lead_1", hook.Data["lead_id"])
}

func TestDeliverWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var received NewWebhook
	var signature string
	httpmock.RegisterResponder(http.MethodPost, testHookURL, func(req *http.Request) (*http.Response, error) {
		signature = req.Header.Get("X-Signature")
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
	})

	err := deliverWebhook(context.Background(), hookConfig(), NewWebhook{Event: EventLeadMerged, Payload: "lead_1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", signature)
	assert.Equal(t, EventLeadMerged, received.Event)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDeliverWebhook_RetriesServerErrors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testHookURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusInternalServerError, "boom"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})

	err := deliverWebhook(context.Background(), hookConfig(), NewWebhook{Event: EventLeadCreated}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDeliverWebhook_ClientErrorIsPermanent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, testHookURL, httpmock.NewStringResponder(http.StatusBadRequest, "bad event"))

	err := deliverWebhook(context.Background(), hookConfig(), NewWebhook{Event: EventRecordFailed}, 10*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, testHookURL, httpmock.NewStringResponder(http.StatusOK, ""))

	config.MockConfig(hookConfig())

	payload, err := json.Marshal(NewWebhook{Event: EventLeadCreated, Payload: map[string]string{"lead_id": "lead_1"}})
	require.NoError(t, err)
	require.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask("webhooks", payload)))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	err = ProcessWebhook(context.Background(), asynq.NewTask("webhooks", []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
