package jobstore

import (
	"encoding/json"
	"fmt"
)

// Stored values carry a one-byte tag so reads know how to decode them. The
// tags are control bytes that text from another producer never starts with.
const (
	tagText byte = 0x01
	tagJSON byte = 0x02
)

// encodeValue tags strings as text and everything else as JSON
func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return append([]byte{tagText}, val...), nil
	case []byte:
		return append([]byte{tagText}, val...), nil
	case Value:
		return val.raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return append([]byte{tagJSON}, data...), nil
}

// Value is a stored value whose decoding is deferred to the caller
type Value struct {
	raw []byte
}

// IsJSON reports whether the value was written as structured data
func (v Value) IsJSON() bool {
	return len(v.raw) > 0 && v.raw[0] == tagJSON
}

// String returns the payload without its tag. Untagged values written by
// another producer are returned unchanged.
func (v Value) String() string {
	if len(v.raw) > 0 && (v.raw[0] == tagText || v.raw[0] == tagJSON) {
		return string(v.raw[1:])
	}
	return string(v.raw)
}

// Decode unmarshals the payload into dst.
//
// Text values decode into *string directly, and into other destinations
// only when the text happens to be valid JSON. Any decoding failure falls
// back to the raw payload when dst is a *string; otherwise the error is
// returned and the contents of dst are unspecified.
func (v Value) Decode(dst any) error {
	payload := v.String()
	if s, ok := dst.(*string); ok && !v.IsJSON() {
		*s = payload
		return nil
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		if s, ok := dst.(*string); ok {
			*s = payload
			return nil
		}
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}
