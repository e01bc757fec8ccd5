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

package notification

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/internal/request"
)

// SystemErrorEvent is the webhook event emitted for errors that need an operator.
const SystemErrorEvent = "system.error"

// WebhookSender delivers an event to the configured webhook endpoint.
type WebhookSender func(event string, payload interface{}) error

var (
	senderMu      sync.RWMutex
	webhookSender WebhookSender
)

// RegisterWebhookSender installs the function NotifyError uses for webhook delivery.
// A later registration replaces an earlier one.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func registeredSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

func slackMessage(project string, err error, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"blocks": []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Error From %s 🐞", project), Emoji: true}},
			{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}},
			{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}}},
		},
	}
}

// SlackNotification posts err to a Slack incoming webhook.
func SlackNotification(webhookURL, project string, err error) error {
	payload, mErr := request.ToJsonReq(slackMessage(project, err, time.Now()))
	if mErr != nil {
		return mErr
	}
	req, rErr := http.NewRequest(http.MethodPost, webhookURL, payload)
	if rErr != nil {
		return rErr
	}
	_, cErr := request.Call(req, nil)
	return cErr
}

// NotifyError logs systemError and fans it out to Slack and the webhook sender
// without blocking the caller.
func NotifyError(systemError error) {
	go notify(systemError)
}

func notify(systemError error) {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl != "" {
		if err := SlackNotification(conf.Notification.Slack.WebhookUrl, conf.ProjectName, systemError); err != nil {
			logrus.Errorf("slack notification failed: %v", err)
		}
	}

	if sender := registeredSender(); sender != nil {
		payload := map[string]interface{}{
			"error":     systemError.Error(),
			"timestamp": time.Now().UTC(),
		}
		if err := sender(SystemErrorEvent, payload); err != nil {
			logrus.Errorf("system error webhook failed: %v", err)
		}
	}
}
