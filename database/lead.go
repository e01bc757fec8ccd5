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

const leadDedupKey = "email"

const insertLeadQuery = `
	INSERT INTO leads (lead_id, tenant_id, email, first_name, last_name, job_title, phone, linkedin_url,
		source, source_workflow, notes, enrichment_data, tags, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`

// The conflict target is the partial unique index on (tenant_id, email).
const leadConflictTarget = `
	ON CONFLICT (tenant_id, email) WHERE email IS NOT NULL`

const mergeLeadClause = ` DO UPDATE SET
		first_name = COALESCE(EXCLUDED.first_name, leads.first_name),
		last_name = COALESCE(EXCLUDED.last_name, leads.last_name),
		job_title = COALESCE(EXCLUDED.job_title, leads.job_title),
		phone = COALESCE(EXCLUDED.phone, leads.phone),
		linkedin_url = COALESCE(EXCLUDED.linkedin_url, leads.linkedin_url),
		source = COALESCE(EXCLUDED.source, leads.source),
		source_workflow = COALESCE(EXCLUDED.source_workflow, leads.source_workflow),
		notes = COALESCE(EXCLUDED.notes, leads.notes),
		enrichment_data = COALESCE(leads.enrichment_data, '{}'::jsonb) || EXCLUDED.enrichment_data,
		tags = CASE WHEN cardinality(EXCLUDED.tags) = 0 THEN leads.tags ELSE EXCLUDED.tags END,
		updated_at = EXCLUDED.updated_at`

const replaceLeadClause = ` DO UPDATE SET
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		job_title = EXCLUDED.job_title,
		phone = EXCLUDED.phone,
		linkedin_url = EXCLUDED.linkedin_url,
		source = EXCLUDED.source,
		source_workflow = EXCLUDED.source_workflow,
		notes = EXCLUDED.notes,
		enrichment_data = EXCLUDED.enrichment_data,
		tags = EXCLUDED.tags,
		updated_at = EXCLUDED.updated_at`

const skipLeadClause = ` DO NOTHING`

const returningLead = `
	RETURNING lead_id, (xmax = 0)`

// upsertLeadQuery builds the single statement for a conflict policy. An empty
// dedup key is a plain insert.
func upsertLeadQuery(dedupKey string, policy model.ConflictPolicy) string {
	if dedupKey == "" {
		return insertLeadQuery + returningLead
	}
	switch policy {
	case model.ConflictSkip:
		return insertLeadQuery + leadConflictTarget + skipLeadClause + returningLead
	case model.ConflictReplace:
		return insertLeadQuery + leadConflictTarget + replaceLeadClause + returningLead
	default:
		return insertLeadQuery + leadConflictTarget + mergeLeadClause + returningLead
	}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// UpsertLead writes lead for tenantID following the descriptor's dedup key and
// conflict policy. The status of an existing lead is never changed.
func (d Datasource) UpsertLead(ctx context.Context, tenantID string, lead *model.StructuredLead, descriptor model.TransformerDescriptor) (model.UpsertResult, error) {
	if descriptor.DedupKey != "" && descriptor.DedupKey != leadDedupKey {
		return model.UpsertResult{}, apierror.NewAPIError(apierror.ErrValidationFailure,
			fmt.Sprintf("Unsupported dedup key %q for leads", descriptor.DedupKey), nil)
	}
	policy := descriptor.Policy()
	if !policy.Valid() {
		return model.UpsertResult{}, apierror.NewAPIError(apierror.ErrValidationFailure,
			fmt.Sprintf("Unsupported conflict policy %q", descriptor.OnConflict), nil)
	}

	lead.ApplyDefaults()
	lead.TenantID = tenantID
	enrichmentJSON, err := json.Marshal(lead.EnrichmentData)
	if err != nil {
		return model.UpsertResult{}, apierror.NewAPIError(apierror.ErrValidationFailure, "Failed to marshal enrichment data", err)
	}

	now := time.Now().UTC()
	candidateID := model.GenerateUUIDWithSuffix("lead")

	var (
		leadID   string
		inserted bool
	)
	err = d.Conn.QueryRowContext(ctx, upsertLeadQuery(descriptor.DedupKey, policy),
		candidateID, tenantID, nullableString(lead.Email), nullableString(lead.FirstName), nullableString(lead.LastName),
		nullableString(lead.JobTitle), nullableString(lead.Phone), nullableString(lead.LinkedinURL),
		nullableString(lead.Source), nullableString(lead.SourceWorkflow), nullableString(lead.Notes),
		enrichmentJSON, pq.Array(lead.Tags), lead.Status, now,
	).Scan(&leadID, &inserted)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.UpsertResult{Outcome: model.OutcomeSkipped}, nil
	case err != nil:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return model.UpsertResult{}, apierror.NewAPIError(apierror.ErrConflict, "Lead with this email already exists", err)
		}
		return model.UpsertResult{}, storeError("failed to upsert lead", err)
	}

	lead.LeadID = leadID
	lead.UpdatedAt = now
	if inserted {
		lead.CreatedAt = now
		return model.UpsertResult{LeadID: leadID, Outcome: model.OutcomeInserted}, nil
	}
	if policy == model.ConflictReplace {
		return model.UpsertResult{LeadID: leadID, Outcome: model.OutcomeReplaced}, nil
	}
	return model.UpsertResult{LeadID: leadID, Outcome: model.OutcomeMerged}, nil
}
