package chartresult

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowMarshalJSON_KeyOrder(t *testing.T) {
	row := Row{Category: "2024-01-01", Values: []interface{}{15.0, nil, "A"}}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"x_value":"2024-01-01","y_value_0":15,"y_value_1":null,"y_value_2":"A"}`, string(data))
}

func TestRowMarshalJSON_SingleValueUsesIndexedKey(t *testing.T) {
	data, err := json.Marshal(Row{Category: "A", Values: []interface{}{int64(3)}})
	require.NoError(t, err)
	assert.Equal(t, `{"x_value":"A","y_value_0":3}`, string(data))
	assert.NotContains(t, string(data), `"y_value"`)
}

func TestRowUnmarshalJSON(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"y_value_1":2,"x_value":"b","y_value_0":1}`), &row))
	assert.Equal(t, "b", row.Category)
	assert.Equal(t, []interface{}{1.0, 2.0}, row.Values)

	err := json.Unmarshal([]byte(`{"x_value":"b","y_value_1":2}`), &row)
	assert.Error(t, err)
}

func TestValueCountAndAsMap(t *testing.T) {
	row := Row{Category: "a", Values: []interface{}{1, 2}}
	m := row.AsMap()
	assert.Equal(t, 2, ValueCount(m))
	assert.Equal(t, "a", m[CategoryKey])
	assert.Equal(t, 2, m[ValueKey(1)])
	assert.Equal(t, 0, ValueCount(map[string]interface{}{"x_value": 1}))
}

func TestNewResponse(t *testing.T) {
	single := NewResponse([]Row{{Category: "a", Values: []interface{}{1}}}, []string{"value"})
	assert.True(t, single.Success)
	assert.Equal(t, 1, single.Count)
	assert.False(t, single.IsMultiValue)

	multi := NewResponse(nil, []string{"a", "b"})
	assert.True(t, multi.IsMultiValue)
	assert.Equal(t, 0, multi.Count)

	data, err := json.Marshal(multi)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[],"count":0,"isMultiValue":true,"yAxes":["a","b"]}`, string(data))
}

func TestNewErrorResponse(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse(errors.New("Invalid yAxis column name: x")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"Invalid yAxis column name: x"}`, string(data))
}
