package model

import (
	"fmt"
	"time"
)

// ConflictPolicy decides what happens when a candidate matches an existing record on its dedup key.
type ConflictPolicy string

const (
	ConflictMerge   ConflictPolicy = "merge"
	ConflictSkip    ConflictPolicy = "skip"
	ConflictReplace ConflictPolicy = "replace"
)

func (p ConflictPolicy) Valid() bool {
	switch p {
	case ConflictMerge, ConflictSkip, ConflictReplace:
		return true
	}
	return false
}

// FieldMapping is one declarative extraction rule. Source is a dotted path with an
// optional "$." root marker; array indexing is not supported.
type FieldMapping struct {
	Source       string      `json:"source"`
	Target       string      `json:"target"`
	Required     bool        `json:"required,omitempty"`
	DefaultValue interface{} `json:"default_value,omitempty"`
	Transform    string      `json:"transform,omitempty"`
}

// TransformerDescriptor is the versioned configuration of a transformer.
type TransformerDescriptor struct {
	EntityType    string         `json:"entity_type"`
	Version       string         `json:"version"`
	SourceTable   string         `json:"source_table"`
	TargetTable   string         `json:"target_table"`
	FieldMappings []FieldMapping `json:"field_mappings"`
	DedupKey      string         `json:"dedup_key,omitempty"`
	OnConflict    ConflictPolicy `json:"on_conflict,omitempty"`
}

// Policy returns the conflict policy, defaulting to merge.
func (d TransformerDescriptor) Policy() ConflictPolicy {
	if d.OnConflict == "" {
		return ConflictMerge
	}
	return d.OnConflict
}

func (d TransformerDescriptor) Validate() error {
	if d.EntityType == "" {
		return fmt.Errorf("transformer descriptor is missing an entity type")
	}
	if d.Version == "" {
		return fmt.Errorf("transformer descriptor for %s is missing a version", d.EntityType)
	}
	if !d.Policy().Valid() {
		return fmt.Errorf("transformer descriptor %s@%s has unknown conflict policy %q", d.EntityType, d.Version, d.OnConflict)
	}
	for i, m := range d.FieldMappings {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("transformer descriptor %s@%s mapping %d needs both source and target", d.EntityType, d.Version, i)
		}
	}
	return nil
}

// TransformerConfig is a stored descriptor row from transformer_configs.
type TransformerConfig struct {
	TransformerDescriptor
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
