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
	"fmt"
	"strings"

	"github.com/blnkfinance/leadpipe/internal/apierror"
	"github.com/blnkfinance/leadpipe/model"
)

const rootMarker = "$."

// ResolvePath walks a dotted path through nested objects. A path may start with
// "$.". Walking through anything that is not an object yields (nil, false).
func ResolvePath(data map[string]interface{}, path string) (interface{}, bool) {
	path = strings.TrimPrefix(path, rootMarker)
	if path == "" {
		return nil, false
	}

	var current interface{} = data
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// applyNamedTransform runs the transform called name over value.
func applyNamedTransform(name string, value interface{}) (interface{}, error) {
	fn, ok := Lookup(name)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrUnknownTransform, fmt.Sprintf("Unknown transform function: %q", name), nil)
	}
	out, err := fn(value)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidationFailure, err.Error(), nil)
	}
	return out, nil
}

// Apply flattens raw into a target record following mappings in order.
// Absent and null values fall back to the mapping default; a required mapping
// with neither fails the whole call and nothing is returned.
func Apply(raw map[string]interface{}, mappings []model.FieldMapping) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(mappings))

	for _, mapping := range mappings {
		value, found := ResolvePath(raw, mapping.Source)
		if !found {
			switch {
			case mapping.DefaultValue != nil:
				value = mapping.DefaultValue
			case mapping.Required:
				return nil, apierror.NewAPIError(apierror.ErrRequiredFieldMissing,
					fmt.Sprintf("Required field %q is missing from raw data", mapping.Source), nil)
			default:
				continue
			}
		}

		if mapping.Transform != "" {
			transformed, err := applyNamedTransform(mapping.Transform, value)
			if err != nil {
				return nil, err
			}
			value = transformed
		}

		result[mapping.Target] = value
	}

	return result, nil
}
