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
	"errors"
	"time"
)

// TransformJob asks a worker to transform one raw record.
type TransformJob struct {
	RecordID    string `json:"record_id"`
	TenantID    string `json:"tenant_id"`
	EntityType  string `json:"entity_type"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	SourceTable string `json:"source_table"`
}

func (j TransformJob) Validate() error {
	if j.RecordID == "" {
		return errors.New("transform job is missing record_id")
	}
	if j.TenantID == "" {
		return errors.New("transform job is missing tenant_id")
	}
	return nil
}

// FingerprintJob samples records of one source and workflow for schema fingerprinting.
type FingerprintJob struct {
	SourceTable string   `json:"source_table"`
	WorkflowID  string   `json:"workflow_id"`
	SampleIDs   []string `json:"sample_ids"`
}

// CampaignJob is the payload of the campaign-execute queue.
type CampaignJob struct {
	CampaignID string   `json:"campaign_id"`
	TenantID   string   `json:"tenant_id"`
	LeadIDs    []string `json:"lead_ids"`
	MessageID  string   `json:"message_id"`
}

func (j CampaignJob) Validate() error {
	if j.CampaignID == "" || j.TenantID == "" {
		return errors.New("campaign job needs campaign_id and tenant_id")
	}
	return nil
}

// SchemaFingerprint is the observed key and type shape of a source and workflow.
type SchemaFingerprint struct {
	SourceTable string            `json:"source_table"`
	WorkflowID  string            `json:"workflow_id"`
	Keys        []string          `json:"keys"`
	Types       map[string]string `json:"types"`
	Hash        string            `json:"hash"`
	SampleCount int               `json:"sample_count"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	LastSeenAt  time.Time         `json:"last_seen_at"`
}
