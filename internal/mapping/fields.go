// Package mapping resolves user-declared column mappings against raw CSV rows
// and coerces the mapped cells into typed transaction fields.
package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// Field is the semantic meaning assigned to a CSV column.
type Field string

const (
	FieldDate        Field = "date"
	FieldAmount      Field = "amount"
	FieldDescription Field = "description"
	FieldRecipient   Field = "recipient"
	FieldCurrency    Field = "currency"
	FieldType        Field = "type"
)

// Fields lists every semantic field in display order.
var Fields = []Field{
	FieldDate,
	FieldAmount,
	FieldDescription,
	FieldRecipient,
	FieldCurrency,
	FieldType,
}

// RequiredFields must all be mapped before a batch can be ingested.
var RequiredFields = []Field{FieldDate, FieldAmount, FieldDescription}

var (
	// ErrMappingIncomplete is matched by *MappingIncompleteError.
	ErrMappingIncomplete = errors.New("mapping incomplete")
	// ErrDuplicateField is returned when two headers map to the same field.
	ErrDuplicateField = errors.New("field mapped more than once")
	// ErrUnknownField is returned for a field name outside Fields.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownHeader is returned when a mapping names a header the batch does not have.
	ErrUnknownHeader = errors.New("unknown header")
	// ErrUnparsableDate is the per-row failure for a date cell that cannot be parsed.
	ErrUnparsableDate = errors.New("unparsable date")
)

// MappingIncompleteError lists the required fields a mapping does not cover.
type MappingIncompleteError struct {
	Missing []Field
}

func (e *MappingIncompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s: missing %s", ErrMappingIncomplete, strings.Join(names, ", "))
}

func (e *MappingIncompleteError) Unwrap() error {
	return ErrMappingIncomplete
}

// ParseField normalizes s into a Field. An empty string is the unmapped field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if f == "" || f.Valid() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Valid reports whether f is one of the known semantic fields.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Required reports whether f must be mapped.
func (f Field) Required() bool {
	for _, req := range RequiredFields {
		if f == req {
			return true
		}
	}
	return false
}
