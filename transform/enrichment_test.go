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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/leadpipe/internal/apierror"
)

func TestEnrichmentTransformer(t *testing.T) {
	et := NewEnrichmentTransformer()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	et.now = func() time.Time { return fixed }

	out, err := et.Transform(RawEnrichment{
		LeadID:   "lead_1",
		Provider: "clearbit",
		Data:     map[string]interface{}{"employees": 120},
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, out.EnrichedAt)
	assert.Equal(t, 120, out.Data["employees"])

	out, err = et.Transform(RawEnrichment{
		LeadID:     "lead_1",
		Provider:   "apollo",
		Data:       map[string]interface{}{"seniority": "vp"},
		EnrichedAt: "2024-02-10",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), out.EnrichedAt)
}

func TestEnrichmentTransformer_Invalid(t *testing.T) {
	et := NewEnrichmentTransformer()

	_, err := et.Transform(RawEnrichment{LeadID: "lead_1", Data: map[string]interface{}{"a": 1}})
	assert.Equal(t, apierror.ErrValidationFailure, apierror.KindOf(err))

	_, err = et.Transform(RawEnrichment{LeadID: "lead_1", Provider: "apollo", Data: map[string]interface{}{"a": 1}, EnrichedAt: "hello"})
	assert.Equal(t, apierror.ErrValidationFailure, apierror.KindOf(err))
	assert.Equal(t, EnrichmentEntityType, et.Descriptor().EntityType)
}
