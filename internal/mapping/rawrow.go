package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Cell is one header/value pair of a raw CSV line.
type Cell struct {
	Header string
	Value  string
}

// RawRow is a CSV line zipped against its header row. Column order is kept so
// the row can be shown back to the user exactly as imported.
type RawRow []Cell

// Zip pairs headers with values. The caller checks that the lengths match.
func Zip(headers, values []string) RawRow {
	row := make(RawRow, len(headers))
	for i, h := range headers {
		row[i] = Cell{Header: h, Value: values[i]}
	}
	return row
}

// Get returns the value of the first cell under header.
func (r RawRow) Get(header string) (string, bool) {
	for _, c := range r {
		if c.Header == header {
			return c.Value, true
		}
	}
	return "", false
}

// MarshalJSON encodes the row as a JSON object with keys in column order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Header)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (r *RawRow) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*r = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("RawRow: expected object, got %v", tok)
	}

	row := RawRow{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("RawRow: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("RawRow: value for %q: %w", key, err)
		}
		row = append(row, Cell{Header: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = row
	return nil
}
