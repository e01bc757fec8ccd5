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

package transform

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

const (
	EnrichmentEntityType = "enrichment"
	EnrichmentVersion    = "1.0.0"
)

// RawEnrichment is the payload an enrichment provider sends back for a lead.
type RawEnrichment struct {
	LeadID     string                 `json:"lead_id"`
	Provider   string                 `json:"provider"`
	Data       map[string]interface{} `json:"data"`
	EnrichedAt string                 `json:"enriched_at,omitempty"`
}

type StructuredEnrichment struct {
	LeadID     string                 `json:"lead_id"`
	Provider   string                 `json:"provider"`
	Data       map[string]interface{} `json:"data"`
	EnrichedAt time.Time              `json:"enriched_at"`
}

func (e StructuredEnrichment) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.LeadID, validation.Required),
		validation.Field(&e.Provider, validation.Required),
		validation.Field(&e.Data, validation.Required),
	)
}

// EnrichmentTransformer normalizes provider enrichment payloads. It does not
// produce leads and is therefore not part of the lead registry.
type EnrichmentTransformer struct {
	descriptor model.TransformerDescriptor
	now        func() time.Time
}

func NewEnrichmentTransformer() *EnrichmentTransformer {
	return &EnrichmentTransformer{
		descriptor: model.TransformerDescriptor{
			EntityType:  EnrichmentEntityType,
			Version:     EnrichmentVersion,
			SourceTable: model.DefaultSourceTable,
			TargetTable: LeadTargetTable,
			OnConflict:  model.ConflictMerge,
		},
		now: time.Now,
	}
}

func (t *EnrichmentTransformer) Descriptor() model.TransformerDescriptor { return t.descriptor }

// Transform parses the enrichment timestamp, falling back to the current time
// when the provider sent none.
func (t *EnrichmentTransformer) Transform(raw RawEnrichment) (*StructuredEnrichment, error) {
	out := &StructuredEnrichment{
		LeadID:     raw.LeadID,
		Provider:   raw.Provider,
		Data:       raw.Data,
		EnrichedAt: t.now().UTC(),
	}
	if raw.EnrichedAt != "" {
		parsed, err := ParseDate(raw.EnrichedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrValidationFailure, err.Error(), nil)
		}
		out.EnrichedAt = parsed.(time.Time)
	}

	if err := out.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidationFailure, err.Error(), nil)
	}
	return out, nil
}
