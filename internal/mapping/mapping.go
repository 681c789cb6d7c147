package mapping

import (
	"fmt"
)

// Assignment maps one CSV header to a semantic field. An empty Field leaves
// the column unmapped.
type Assignment struct {
	Header string `json:"header" yaml:"header"`
	Field  Field  `json:"field" yaml:"field"`
}

// ColumnMapping is the ordered set of header assignments for one batch.
type ColumnMapping []Assignment

// HeaderFor returns the first header mapped to f.
func (m ColumnMapping) HeaderFor(f Field) (string, bool) {
	for _, a := range m {
		if a.Field == f {
			return a.Header, true
		}
	}
	return "", false
}

// Has reports whether any header is mapped to f.
func (m ColumnMapping) Has(f Field) bool {
	_, ok := m.HeaderFor(f)
	return ok
}

// Validate checks the mapping against the batch headers. A nil headers slice
// skips the header membership check.
//
// Field names are checked first, then header membership, then duplicates and
// finally required-field coverage, so the first reported problem is the one
// closest to the user's input.
func (m ColumnMapping) Validate(headers []string) error {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	seen := make(map[Field]string, len(m))
	for _, a := range m {
		if a.Field == "" {
			continue
		}
		if !a.Field.Valid() {
			return fmt.Errorf("Validate: header %q: %w: %q", a.Header, ErrUnknownField, a.Field)
		}
		if headers != nil && !known[a.Header] {
			return fmt.Errorf("Validate: %w: %q", ErrUnknownHeader, a.Header)
		}
		if prev, dup := seen[a.Field]; dup {
			return fmt.Errorf("Validate: %w: %q claimed by %q and %q", ErrDuplicateField, a.Field, prev, a.Header)
		}
		seen[a.Field] = a.Header
	}

	var missing []Field
	for _, req := range RequiredFields {
		if _, ok := seen[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return &MappingIncompleteError{Missing: missing}
	}

	return nil
}

// FromFields builds a ColumnMapping from a field to header map, in Fields
// order. It is the shape CLI flags and config files use.
func FromFields(byField map[Field]string) ColumnMapping {
	var m ColumnMapping
	for _, f := range Fields {
		if h, ok := byField[f]; ok && h != "" {
			m = append(m, Assignment{Header: h, Field: f})
		}
	}
	return m
}
