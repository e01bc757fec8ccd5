package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("rec")
	assert.True(t, strings.HasPrefix(id, "rec_"))
	assert.Len(t, id, len("rec_")+36)
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("rec"))
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "", StringValue(nil))
	assert.Equal(t, "email", StringValue(ptr.String("email")))
}

func TestRawRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  RawRecord
		wantErr bool
	}{
		{"valid", RawRecord{TenantID: "t", EntityType: "lead", RawData: map[string]interface{}{}}, false},
		{"no tenant", RawRecord{EntityType: "lead", RawData: map[string]interface{}{}}, true},
		{"no entity type", RawRecord{TenantID: "t", RawData: map[string]interface{}{}}, true},
		{"no payload", RawRecord{TenantID: "t", EntityType: "lead"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStructuredLead_Validate(t *testing.T) {
	lead := StructuredLead{Email: ptr.String("ada@example.com")}
	lead.ApplyDefaults()
	assert.NoError(t, lead.Validate())
	assert.Equal(t, LeadStatusNew, lead.Status)
	assert.NotNil(t, lead.Tags)
	assert.NotNil(t, lead.EnrichmentData)

	lead.Email = ptr.String("not-an-email")
	assert.Error(t, lead.Validate())

	lead.Email = nil
	lead.LinkedinURL = ptr.String("linkedin")
	assert.Error(t, lead.Validate())

	lead.LinkedinURL = ptr.String("https://www.linkedin.com/in/ada")
	lead.Status = "archived"
	assert.Error(t, lead.Validate())
}

func TestPipelineStatus_Add(t *testing.T) {
	var s PipelineStatus
	s.Add(StatusPending, 2)
	s.Add(StatusProcessing, 1)
	s.Add(StatusProcessed, 7)
	s.Add(StatusFailed, 3)
	s.Add(StatusPending, 1)
	s.Add("unknown", 100)

	assert.Equal(t, PipelineStatus{Pending: 3, Processing: 1, Processed: 7, Failed: 3}, s)
}

func TestJobValidation(t *testing.T) {
	assert.NoError(t, TransformJob{RecordID: "rec_1", TenantID: "t"}.Validate())
	assert.Error(t, TransformJob{TenantID: "t"}.Validate())
	assert.Error(t, TransformJob{RecordID: "rec_1"}.Validate())

	assert.NoError(t, CampaignJob{CampaignID: "cmp_1", TenantID: "t"}.Validate())
	assert.Error(t, CampaignJob{CampaignID: "cmp_1"}.Validate())
}

func TestTransformerDescriptor_Validate(t *testing.T) {
	d := TransformerDescriptor{EntityType: "lead", Version: "1.0.0"}
	assert.NoError(t, d.Validate())
	assert.Equal(t, ConflictMerge, d.Policy())

	d.OnConflict = "overwrite"
	assert.Error(t, d.Validate())

	d.OnConflict = ConflictReplace
	d.FieldMappings = []FieldMapping{{Source: "$.email"}}
	assert.ErrorContains(t, d.Validate(), "mapping 0")

	assert.Error(t, TransformerDescriptor{Version: "1.0.0"}.Validate())
	assert.Error(t, TransformerDescriptor{EntityType: "lead"}.Validate())
}
