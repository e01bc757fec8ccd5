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
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

func leadDescriptor(policy model.ConflictPolicy) model.TransformerDescriptor {
	return model.TransformerDescriptor{EntityType: "lead", Version: "1.0.0", DedupKey: "email", OnConflict: policy}
}

func candidateLead() *model.StructuredLead {
	return &model.StructuredLead{
		Email:     ptr.String(gofakeit.Email()),
		FirstName: ptr.String(gofakeit.FirstName()),
		Source:    ptr.String("webinar"),
		Tags:      []string{"inbound"},
	}
}

func TestUpsertLead_Inserted(t *testing.T) {
	ds, mock := newMockDatasource(t)
	lead := candidateLead()
	enrichment, _ := json.Marshal(map[string]interface{}{})

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (tenant_id, email) WHERE email IS NOT NULL DO UPDATE SET")).
		WithArgs(sqlmock.AnyArg(), "tenant_1", *lead.Email, *lead.FirstName, nil, nil, nil, nil, "webinar", nil, nil,
			enrichment, sqlmock.AnyArg(), "new", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"lead_id", "inserted"}).AddRow("lead_1", true))

	result, err := ds.UpsertLead(context.Background(), "tenant_1", lead, leadDescriptor(model.ConflictMerge))
	require.NoError(t, err)
	assert.Equal(t, model.UpsertResult{LeadID: "lead_1", Outcome: model.OutcomeInserted}, result)
	assert.Equal(t, "tenant_1", lead.TenantID)
	assert.Equal(t, model.LeadStatusNew, lead.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLead_MergeKeepsExistingValues(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("first_name = COALESCE(EXCLUDED.first_name, leads.first_name)") +
		".*" + regexp.QuoteMeta("enrichment_data = COALESCE(leads.enrichment_data, '{}'::jsonb) || EXCLUDED.enrichment_data") +
		".*" + regexp.QuoteMeta("tags = CASE WHEN cardinality(EXCLUDED.tags) = 0 THEN leads.tags ELSE EXCLUDED.tags END") +
		".*" + regexp.QuoteMeta("RETURNING lead_id, (xmax = 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"lead_id", "inserted"}).AddRow("lead_existing", false))

	result, err := ds.UpsertLead(context.Background(), "tenant_1", candidateLead(), leadDescriptor(model.ConflictMerge))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeMerged, result.Outcome)
	assert.Equal(t, "lead_existing", result.LeadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLead_Replace(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("first_name = EXCLUDED.first_name")).
		WillReturnRows(sqlmock.NewRows([]string{"lead_id", "inserted"}).AddRow("lead_existing", false))

	result, err := ds.UpsertLead(context.Background(), "tenant_1", candidateLead(), leadDescriptor(model.ConflictReplace))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReplaced, result.Outcome)
}

func TestUpsertLead_Skip(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE email IS NOT NULL DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"lead_id", "inserted"}))

	result, err := ds.UpsertLead(context.Background(), "tenant_1", candidateLead(), leadDescriptor(model.ConflictSkip))
	require.NoError(t, err)
	assert.Equal(t, model.UpsertResult{Outcome: model.OutcomeSkipped}, result)
}

func TestUpsertLead_Validation(t *testing.T) {
	ds, _ := newMockDatasource(t)

	descriptor := leadDescriptor(model.ConflictMerge)
	descriptor.DedupKey = "phone"
	_, err := ds.UpsertLead(context.Background(), "tenant_1", candidateLead(), descriptor)
	assert.Equal(t, apierror.ErrValidationFailure, apierror.KindOf(err))

	descriptor = leadDescriptor("overwrite")
	_, err = ds.UpsertLead(context.Background(), "tenant_1", candidateLead(), descriptor)
	assert.Equal(t, apierror.ErrValidationFailure, apierror.KindOf(err))
}

func TestUpsertLead_StoreError(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("INSERT INTO leads").WillReturnError(sql.ErrConnDone)

	_, err := ds.UpsertLead(context.Background(), "tenant_1", candidateLead(), leadDescriptor(model.ConflictMerge))
	assert.Equal(t, apierror.ErrStoreError, apierror.KindOf(err))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
}

func TestUpsertLeadQuery(t *testing.T) {
	plain := upsertLeadQuery("", model.ConflictMerge)
	assert.NotContains(t, plain, "ON CONFLICT")
	assert.Contains(t, plain, "RETURNING lead_id")

	for _, policy := range []model.ConflictPolicy{model.ConflictMerge, model.ConflictSkip, model.ConflictReplace} {
		q := upsertLeadQuery("email", policy)
		assert.Contains(t, q, "ON CONFLICT (tenant_id, email) WHERE email IS NOT NULL")
		assert.NotContains(t, q, "status =")
	}
}
