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
	"encoding/json"
	"time"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

type fingerprintDocument struct {
	Keys  []string          `json:"keys"`
	Types map[string]string `json:"types"`
}

// UpsertSchemaFingerprint stores the latest shape for a source and workflow and adds
// the new samples to the running count. first_seen_at and sample_count are read back.
func (d Datasource) UpsertSchemaFingerprint(ctx context.Context, fingerprint *model.SchemaFingerprint) error {
	doc, err := json.Marshal(fingerprintDocument{Keys: fingerprint.Keys, Types: fingerprint.Types})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal fingerprint", err)
	}

	if fingerprint.LastSeenAt.IsZero() {
		fingerprint.LastSeenAt = time.Now().UTC()
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO schema_fingerprints (source_table, workflow_id, fingerprint, fingerprint_hash, sample_count, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (source_table, workflow_id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			fingerprint_hash = EXCLUDED.fingerprint_hash,
			sample_count = schema_fingerprints.sample_count + EXCLUDED.sample_count,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING sample_count, first_seen_at
	`, fingerprint.SourceTable, fingerprint.WorkflowID, doc, fingerprint.Hash, fingerprint.SampleCount, fingerprint.LastSeenAt,
	).Scan(&fingerprint.SampleCount, &fingerprint.FirstSeenAt)
	if err != nil {
		return storeError("failed to upsert schema fingerprint", err)
	}
	return nil
}
