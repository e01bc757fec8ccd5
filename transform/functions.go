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
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Func is a named value transform referenced from FieldMapping.Transform.
type Func func(value interface{}) (interface{}, error)

var functions = map[string]Func{
	"trim":            Trim,
	"lowercase":       Lowercase,
	"uppercase":       Uppercase,
	"normalize_phone": NormalizePhone,
	"parse_date":      ParseDate,
	"to_number":       ToNumber,
}

// Lookup returns the transform registered under name. Names are matched exactly.
func Lookup(name string) (Func, bool) {
	fn, ok := functions[name]
	return fn, ok
}

// Names lists the available transform names in sorted order.
func Names() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stringify renders scalars the way they would print; nested values fall back to fmt.
func stringify(value interface{}) string {
	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return s
}

// Trim stringifies value and removes leading and trailing whitespace.
func Trim(value interface{}) (interface{}, error) {
	return strings.TrimSpace(stringify(value)), nil
}

// Lowercase stringifies value and lower-cases it using language-neutral rules.
func Lowercase(value interface{}) (interface{}, error) {
	return cases.Lower(language.Und).String(stringify(value)), nil
}

// Uppercase stringifies value and upper-cases it using language-neutral rules.
func Uppercase(value interface{}) (interface{}, error) {
	return cases.Upper(language.Und).String(stringify(value)), nil
}

// NormalizePhone keeps only the digits and prefixes them with "+".
// Input without any digit normalizes to "".
func NormalizePhone(value interface{}) (interface{}, error) {
	var b strings.Builder
	for _, r := range stringify(value) {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", nil
	}
	return "+" + b.String(), nil
}

// ParseDate parses value into a time.Time, accepting the layouts dateparse knows.
// Dates without a zone are read as UTC. A time.Time passes through unchanged.
func ParseDate(value interface{}) (interface{}, error) {
	if t, ok := value.(time.Time); ok {
		return t, nil
	}
	raw := strings.TrimSpace(stringify(value))
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("Invalid date value: %s", stringify(value))
	}
	return t, nil
}

// ToNumber converts value to a float64. Strings are trimmed first.
func ToNumber(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	n, err := cast.ToFloat64E(value)
	if err != nil {
		return nil, fmt.Errorf("Cannot convert to number: %s", stringify(value))
	}
	return n, nil
}
