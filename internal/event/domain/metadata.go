package domain

import (
	"bytes"
	"encoding/json"
)

// Field is one metadata entry.
type Field struct {
	Key   string
	Value any
}

// Metadata is an insertion-ordered mapping of string keys to scalar values.
// A nil Metadata is empty. Methods never modify the receiver's backing array.
type Metadata []Field

// M builds Metadata from alternating key/value arguments. A trailing key without a
// value is ignored, as are non-string keys.
func M(kv ...any) Metadata {
	var m Metadata
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		m = m.With(key, kv[i+1])
	}
	return m
}

// Len returns the number of entries.
func (m Metadata) Len() int { return len(m) }

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}

// Clone returns an independent copy, or nil for empty metadata.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return nil
	}
	out := make(Metadata, len(m))
	copy(out, m)
	return out
}

// With returns a copy with key set to value. An existing key keeps its position.
func (m Metadata) With(key string, value any) Metadata {
	out := make(Metadata, len(m), len(m)+1)
	copy(out, m)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Key: key, Value: value})
}

// Without returns a copy with key removed.
func (m Metadata) Without(key string) Metadata {
	out := make(Metadata, 0, len(m))
	for _, f := range m {
		if f.Key != key {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Merge returns a copy of m with every entry of other applied in order.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m.Clone()
	for _, f := range other {
		out = out.With(f.Key, f.Value)
	}
	return out
}

// MarshalJSON encodes the metadata as a JSON object, keeping insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
