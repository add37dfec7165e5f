// Package chartresult normalizes chart query output into x_value/y_value_N
// rows and the HTTP response envelope.
package chartresult

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// CategoryKey is the row key of the category value.
	CategoryKey = "x_value"
	// ValueKeyPrefix prefixes the index of each value key.
	ValueKeyPrefix = "y_value_"
)

// ValueKey returns the row key of the i-th value axis.
func ValueKey(i int) string {
	return ValueKeyPrefix + strconv.Itoa(i)
}

// Row is one normalized chart row. Every row of a result carries the same
// number of values, in request order.
type Row struct {
	Category interface{}
	Values   []interface{}
}

// MarshalJSON writes x_value then y_value_0..N-1, so output bytes are stable.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, CategoryKey, r.Category); err != nil {
		return nil, err
	}
	for i, v := range r.Values {
		buf.WriteByte(',')
		if err := writeField(&buf, ValueKey(i), v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":`)
	buf.Write(encoded)
	return nil
}

// UnmarshalJSON accepts any key order. Value keys must be contiguous from 0.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	count := ValueCount(raw)
	values := make([]interface{}, count)
	for i := range values {
		v, ok := raw[ValueKey(i)]
		if !ok {
			return fmt.Errorf("row is missing %s", ValueKey(i))
		}
		values[i] = v
	}
	r.Category = raw[CategoryKey]
	r.Values = values
	return nil
}

// ValueCount counts the y_value_* keys of a decoded row.
func ValueCount(row map[string]interface{}) int {
	count := 0
	for key := range row {
		if strings.HasPrefix(key, ValueKeyPrefix) {
			count++
		}
	}
	return count
}

// AsMap returns the row keyed by its JSON names.
func (r Row) AsMap() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Values)+1)
	m[CategoryKey] = r.Category
	for i, v := range r.Values {
		m[ValueKey(i)] = v
	}
	return m
}
