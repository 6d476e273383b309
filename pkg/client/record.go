package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an API object (tweet or user profile) kept verbatim, with its
// id extracted.
type Record struct {
	ID  int64
	Raw json.RawMessage
}

// Identity returns the record id.
func (r Record) Identity() int64 {
	return r.ID
}

// MarshalJSON re-emits the original object.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Raw == nil {
		return []byte("null"), nil
	}
	return r.Raw, nil
}

// UnmarshalJSON keeps the raw object and decodes the id as int64, avoiding
// float64 rounding for ids above 2^53.
func (r *Record) UnmarshalJSON(data []byte) error {
	var head struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode record id: %w", err)
	}
	if head.ID == nil {
		return ErrMissingID
	}

	r.ID = *head.ID
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Fields decodes the record into a generic map. Numbers are json.Number.
func (r Record) Fields() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(r.Raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	return fields, nil
}

// decodeRecords parses a JSON array of records. Never returns a nil slice
// without an error.
func decodeRecords(body []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = make([]Record, 0)
	}
	return records, nil
}
