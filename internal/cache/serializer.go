package cache

import (
	"encoding/json"
	"fmt"

	"github.com/LavishGent/routewise/internal/types"
)

// JSONSerializer implements Serializer using JSON encoding.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Marshal serializes a value to JSON bytes.
func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes JSON bytes into the destination.
func (s *JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

func encodeEntry(s types.Serializer, entry *types.CacheEntry) ([]byte, error) {
	data, err := s.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}
	return data, nil
}

func decodeEntry(s types.Serializer, data []byte) (*types.CacheEntry, error) {
	var entry types.CacheEntry
	if err := s.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}
	return &entry, nil
}

var _ types.Serializer = (*JSONSerializer)(nil)
