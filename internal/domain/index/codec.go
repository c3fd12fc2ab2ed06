package index

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Decode parses the serialized record array. Empty input and JSON null decode to an
// empty list; anything else that is not an array of records is ErrCorrupt.
func Decode(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Record{}, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if records == nil {
		records = []Record{}
	}
	SortByRecency(records)
	return records, nil
}

// Encode serializes records as a JSON array ("[]" for none).
func Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}
