// Package product defines the normalised product record produced by the
// extraction engine and consumed as reference data by article generation.
package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is a structured summary of one product page. Every populated field
// was derived from content present on the page; absent fields mean "not found".
type Record struct {
	SourceURL   string    `json:"sourceUrl"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price,omitempty"`
	Breadcrumbs []string  `json:"breadcrumbs,omitempty"`
	Features    []string  `json:"features,omitempty"`
	Technical   SpecTable `json:"technical,omitempty"`
}

// Empty reports whether no optional field is populated.
func (r *Record) Empty() bool {
	return len(r.PopulatedFields()) == 0
}

// PopulatedFields lists the optional fields that carry a value, in record order.
func (r *Record) PopulatedFields() []string {
	var fields []string
	if r.Title != "" {
		fields = append(fields, "title")
	}
	if r.Description != "" {
		fields = append(fields, "description")
	}
	if r.Price != "" {
		fields = append(fields, "price")
	}
	if len(r.Breadcrumbs) > 0 {
		fields = append(fields, "breadcrumbs")
	}
	if len(r.Features) > 0 {
		fields = append(fields, "features")
	}
	if len(r.Technical) > 0 {
		fields = append(fields, "technical")
	}
	return fields
}

// Clone returns a deep copy that callers may edit freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Breadcrumbs = append([]string(nil), r.Breadcrumbs...)
	c.Features = append([]string(nil), r.Features...)
	c.Technical = append(SpecTable(nil), r.Technical...)
	return &c
}

// Spec is one label/value row of a technical specification table.
type Spec struct {
	Label string
	Value string
}

// SpecTable is an ordered label -> value mapping. Labels are unique under
// case- and whitespace-insensitive comparison; the first occurrence wins.
type SpecTable []Spec

// Set appends label/value unless the label is already present.
// It returns false when the row was rejected as a duplicate or blank.
func (t *SpecTable) Set(label, value string) bool {
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return false
	}
	if _, ok := t.Get(label); ok {
		return false
	}
	*t = append(*t, Spec{Label: label, Value: value})
	return true
}

// Get returns the value for label.
func (t SpecTable) Get(label string) (string, bool) {
	key := labelKey(label)
	for _, s := range t {
		if labelKey(s.Label) == key {
			return s.Value, true
		}
	}
	return "", false
}

func labelKey(label string) string {
	label = strings.TrimRight(strings.TrimSpace(label), ":")
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// MarshalJSON encodes the table as a JSON object in insertion order.
func (t SpecTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(s.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.Value)
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

// UnmarshalJSON decodes a JSON object keeping document order. Non-string
// values are kept as their literal JSON text.
func (t *SpecTable) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("technical: expected object, got %v", tok)
	}

	var out SpecTable
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("technical: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = strings.TrimSpace(string(raw))
		}
		out.Set(label, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}
