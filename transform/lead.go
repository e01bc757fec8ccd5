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
	"context"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

const (
	LeadEntityType  = "lead"
	LeadVersion     = "1.0.0"
	LeadTargetTable = "leads"

	companyNamePath = "$.company.name"
	companyNameKey  = "companyName"
	enrichmentKey   = "enrichmentData"
)

// AlternateRule is a fallback source for a target the primary mappings left unset.
// Rules are tried in slice order and the first one that resolves wins.
type AlternateRule struct {
	Target    string
	Source    string
	Transform string
}

var defaultLeadMappings = []model.FieldMapping{
	{Source: "$.email", Target: "email", Required: true},
	{Source: "$.firstName", Target: "firstName", Transform: "trim"},
	{Source: "$.lastName", Target: "lastName", Transform: "trim"},
	{Source: "$.phone", Target: "phone", Transform: "normalize_phone"},
	{Source: "$.jobTitle", Target: "jobTitle", Transform: "trim"},
	{Source: "$.linkedinUrl", Target: "linkedinUrl"},
	{Source: "$.source", Target: "source", Transform: "trim"},
	{Source: "$.tags", Target: "tags"},
}

var defaultLeadAlternates = []AlternateRule{
	{Target: "firstName", Source: "$.first_name", Transform: "trim"},
	{Target: "lastName", Source: "$.last_name", Transform: "trim"},
	{Target: "jobTitle", Source: "$.job_title", Transform: "trim"},
	{Target: "jobTitle", Source: "$.title", Transform: "trim"},
	{Target: "linkedinUrl", Source: "$.linkedin_url"},
	{Target: "linkedinUrl", Source: "$.linkedin"},
	{Target: "phone", Source: "$.phone_number", Transform: "normalize_phone"},
	{Target: "source", Source: "$.lead_source", Transform: "trim"},
	{Target: "source", Source: "$.origin", Transform: "trim"},
	{Target: "tags", Source: "$.labels"},
}

// DefaultLeadMappings returns a copy of the built-in primary lead mappings.
func DefaultLeadMappings() []model.FieldMapping {
	return append([]model.FieldMapping(nil), defaultLeadMappings...)
}

// DefaultLeadAlternates returns a copy of the built-in alternate rules.
func DefaultLeadAlternates() []AlternateRule {
	return append([]AlternateRule(nil), defaultLeadAlternates...)
}

// LeadTransformer maps raw lead payloads onto model.StructuredLead.
type LeadTransformer struct {
	descriptor model.TransformerDescriptor
	alternates []AlternateRule
}

type LeadOption func(*LeadTransformer)

// WithDescriptor overrides the version, mappings, dedup key and conflict policy
// with the non-empty values of d. Targets in d that have no built-in alternate get a
// snake_case alternate derived from their source key.
func WithDescriptor(d model.TransformerDescriptor) LeadOption {
	return func(t *LeadTransformer) {
		if d.Version != "" {
			t.descriptor.Version = d.Version
		}
		if d.SourceTable != "" {
			t.descriptor.SourceTable = d.SourceTable
		}
		if len(d.FieldMappings) > 0 {
			t.descriptor.FieldMappings = d.FieldMappings
			t.alternates = append(t.alternates, derivedAlternates(d.FieldMappings, t.alternates)...)
		}
		if d.DedupKey != "" {
			t.descriptor.DedupKey = d.DedupKey
		}
		if d.OnConflict != "" {
			t.descriptor.OnConflict = d.OnConflict
		}
	}
}

// WithoutDedup clears the dedup key so every transformed lead is a plain insert.
func WithoutDedup() LeadOption {
	return func(t *LeadTransformer) {
		t.descriptor.DedupKey = ""
	}
}

func WithAlternates(rules []AlternateRule) LeadOption {
	return func(t *LeadTransformer) {
		t.alternates = rules
	}
}

func NewLeadTransformer(opts ...LeadOption) *LeadTransformer {
	t := &LeadTransformer{
		descriptor: model.TransformerDescriptor{
			EntityType:    LeadEntityType,
			Version:       LeadVersion,
			SourceTable:   model.DefaultSourceTable,
			TargetTable:   LeadTargetTable,
			FieldMappings: DefaultLeadMappings(),
			DedupKey:      "email",
			OnConflict:    model.ConflictMerge,
		},
		alternates: DefaultLeadAlternates(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *LeadTransformer) EntityType() string { return t.descriptor.EntityType }
func (t *LeadTransformer) Version() string    { return t.descriptor.Version }

func (t *LeadTransformer) Descriptor() model.TransformerDescriptor { return t.descriptor }

// Alternates returns the ordered fallback rules.
func (t *LeadTransformer) Alternates() []AlternateRule {
	return append([]AlternateRule(nil), t.alternates...)
}

// Transform runs the primary mappings, fills unresolved targets from the alternate
// rules, lifts the company name into the enrichment data and validates the result.
func (t *LeadTransformer) Transform(_ context.Context, raw map[string]interface{}) (*model.StructuredLead, error) {
	out, err := Apply(raw, t.descriptor.FieldMappings)
	if err != nil {
		return nil, err
	}

	for _, rule := range t.alternates {
		if _, set := out[rule.Target]; set {
			continue
		}
		value, found := ResolvePath(raw, rule.Source)
		if !found {
			continue
		}
		if rule.Transform != "" {
			value, err = applyNamedTransform(rule.Transform, value)
			if err != nil {
				return nil, err
			}
		}
		out[rule.Target] = value
	}

	if companyName, found := ResolvePath(raw, companyNamePath); found {
		enrichment, _ := out[enrichmentKey].(map[string]interface{})
		if enrichment == nil {
			enrichment = make(map[string]interface{})
		}
		enrichment[companyNameKey] = companyName
		out[enrichmentKey] = enrichment
	}

	lead, err := assembleLead(out)
	if err != nil {
		return nil, err
	}
	lead.ApplyDefaults()

	if err := lead.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidationFailure, err.Error(), nil)
	}
	return lead, nil
}

// assembleLead copies mapped targets onto the lead. Targets that are not lead
// columns are kept in the enrichment data.
func assembleLead(out map[string]interface{}) (*model.StructuredLead, error) {
	lead := &model.StructuredLead{}
	stringFields := map[string]**string{
		"email":       &lead.Email,
		"firstName":   &lead.FirstName,
		"lastName":    &lead.LastName,
		"jobTitle":    &lead.JobTitle,
		"phone":       &lead.Phone,
		"linkedinUrl": &lead.LinkedinURL,
		"source":      &lead.Source,
		"notes":       &lead.Notes,
	}

	for target, value := range out {
		if field, ok := stringFields[target]; ok {
			s, err := cast.ToStringE(value)
			if err != nil {
				return nil, apierror.NewAPIError(apierror.ErrValidationFailure, fmt.Sprintf("%s: must be a string.", target), nil)
			}
			*field = &s
			continue
		}

		switch target {
		case "status":
			lead.Status = model.LeadStatus(strings.ToLower(cast.ToString(value)))
		case "tags":
			tags, err := cast.ToStringSliceE(value)
			if err != nil {
				return nil, apierror.NewAPIError(apierror.ErrValidationFailure, "tags: must be a list of strings.", nil)
			}
			lead.Tags = lo.Uniq(lo.Compact(tags))
		case enrichmentKey:
			enrichment, ok := value.(map[string]interface{})
			if !ok {
				return nil, apierror.NewAPIError(apierror.ErrValidationFailure, "enrichmentData: must be an object.", nil)
			}
			lead.EnrichmentData = mergeMaps(lead.EnrichmentData, enrichment)
		default:
			lead.EnrichmentData = mergeMaps(lead.EnrichmentData, map[string]interface{}{target: value})
		}
	}
	return lead, nil
}

func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// derivedAlternates adds a snake_case fallback for camelCase source keys whose
// target has no rule yet.
func derivedAlternates(mappings []model.FieldMapping, existing []AlternateRule) []AlternateRule {
	covered := lo.SliceToMap(existing, func(r AlternateRule) (string, bool) { return r.Target, true })

	var derived []AlternateRule
	for _, m := range mappings {
		if covered[m.Target] {
			continue
		}
		source := strings.TrimPrefix(m.Source, rootMarker)
		if strings.Contains(source, ".") {
			continue
		}
		snake := strcase.ToSnake(source)
		if snake == source {
			continue
		}
		derived = append(derived, AlternateRule{Target: m.Target, Source: rootMarker + snake, Transform: m.Transform})
		covered[m.Target] = true
	}
	return derived
}
