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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// StructuredLead is the canonical lead shape produced by the lead transformer and
// stored in the leads table. Optional fields are nil when the source did not supply them.
type StructuredLead struct {
	LeadID         string                 `json:"lead_id,omitempty"`
	TenantID       string                 `json:"tenant_id,omitempty"`
	Email          *string                `json:"email,omitempty"`
	FirstName      *string                `json:"first_name,omitempty"`
	LastName       *string                `json:"last_name,omitempty"`
	JobTitle       *string                `json:"job_title,omitempty"`
	Phone          *string                `json:"phone,omitempty"`
	LinkedinURL    *string                `json:"linkedin_url,omitempty"`
	Source         *string                `json:"source,omitempty"`
	SourceWorkflow *string                `json:"source_workflow,omitempty"`
	Notes          *string                `json:"notes,omitempty"`
	EnrichmentData map[string]interface{} `json:"enrichment_data"`
	Tags           []string               `json:"tags"`
	Status         LeadStatus             `json:"status"`
	CreatedAt      time.Time              `json:"created_at,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at,omitempty"`
}

// ApplyDefaults fills the fields a new lead always carries.
func (l *StructuredLead) ApplyDefaults() {
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	if l.EnrichmentData == nil {
		l.EnrichmentData = map[string]interface{}{}
	}
}

func (l StructuredLead) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Email, validation.NilOrNotEmpty, is.EmailFormat),
		validation.Field(&l.LinkedinURL, validation.NilOrNotEmpty, is.RequestURL),
		validation.Field(&l.Status, validation.Required, validation.In(
			LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusConverted, LeadStatusLost,
		)),
	)
}

// UpsertOutcome describes what the dedup engine did with a candidate lead.
type UpsertOutcome string

const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeMerged   UpsertOutcome = "merged"
	OutcomeReplaced UpsertOutcome = "replaced"
	OutcomeSkipped  UpsertOutcome = "skipped"
)

type UpsertResult struct {
	LeadID  string        `json:"lead_id,omitempty"`
	Outcome UpsertOutcome `json:"outcome"`
}
