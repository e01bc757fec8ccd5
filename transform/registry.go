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
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

// Transformer turns the raw payload of one entity type into a structured lead.
type Transformer interface {
	EntityType() string
	Version() string
	Descriptor() model.TransformerDescriptor
	Transform(ctx context.Context, raw map[string]interface{}) (*model.StructuredLead, error)
}

// Registry holds transformers keyed by entity type and version.
// It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	transformers map[string]map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{transformers: make(map[string]map[string]Transformer)}
}

// NewDefaultRegistry returns a registry with the built-in lead transformer.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewLeadTransformer())
	return r
}

// Register stores t under its entity type and version, replacing any transformer
// already registered for the same pair.
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.transformers[t.EntityType()]
	if !ok {
		versions = make(map[string]Transformer)
		r.transformers[t.EntityType()] = versions
	}
	versions[t.Version()] = t
}

// Get returns the exact version when one is given, otherwise the latest.
func (r *Registry) Get(entityType, version string) (Transformer, bool) {
	if version == "" {
		return r.GetLatest(entityType)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transformers[entityType][version]
	return t, ok
}

// GetLatest returns the transformer with the highest semantic version.
func (r *Registry) GetLatest(entityType string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.transformers[entityType]
	if len(versions) == 0 {
		return nil, false
	}
	sorted := sortedVersions(versions)
	return versions[sorted[len(sorted)-1]], true
}

func (r *Registry) Has(entityType, version string) bool {
	_, ok := r.Get(entityType, version)
	return ok
}

func (r *Registry) ListEntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := lo.Keys(r.transformers)
	sort.Strings(types)
	return types
}

// ListVersions returns the versions of entityType in ascending semantic order.
func (r *Registry) ListVersions(entityType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.transformers[entityType]
	if !ok {
		return []string{}
	}
	return sortedVersions(versions)
}

// Resolve is Get with a typed error for entity types nothing is registered for.
func (r *Registry) Resolve(entityType, version string) (Transformer, error) {
	if t, ok := r.Get(entityType, version); ok {
		return t, nil
	}
	if version != "" && r.Has(entityType, "") {
		return nil, apierror.NewAPIError(apierror.ErrUnsupportedEntityType,
			fmt.Sprintf("Unsupported version %s for entity type %s", version, entityType), nil)
	}

	supported := r.ListEntityTypes()
	if len(supported) == 1 {
		return nil, apierror.NewAPIError(apierror.ErrUnsupportedEntityType,
			fmt.Sprintf("Unsupported entity type: %s. Only '%s' is currently supported.", entityType, supported[0]), nil)
	}
	return nil, apierror.NewAPIError(apierror.ErrUnsupportedEntityType,
		fmt.Sprintf("Unsupported entity type: %s. Supported types: %s.", entityType, strings.Join(supported, ", ")), nil)
}

func sortedVersions(versions map[string]Transformer) []string {
	keys := lo.Keys(versions)
	sort.Slice(keys, func(i, j int) bool {
		if c := CompareSemver(keys[i], keys[j]); c != 0 {
			return c < 0
		}
		return keys[i] < keys[j]
	})
	return keys
}

// CompareSemver compares dot separated versions segment by segment as numbers.
// Missing segments count as zero, so "1.0" equals "1.0.0" and "1.0.10" > "1.0.2".
func CompareSemver(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	for i := 0; i < max(len(partsA), len(partsB)); i++ {
		numA := segment(partsA, i)
		numB := segment(partsB, i)
		if numA != numB {
			if numA < numB {
				return -1
			}
			return 1
		}
	}
	return 0
}

func segment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return n
}
