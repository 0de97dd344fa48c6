package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"boolean":             Boolean,
		"INT":                 Integer,
		"long":                Bigint,
		"varchar":             String,
		"map<string, string>": StringMap,
		"map(string,double)":  DoubleMap,
		"json-object":         JSON,
		"timestamp":           Timestamp,
	}
	for in, want := range tests {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseType("uuid")
	assert.Error(t, err)
}

func TestColumn_JSONRoundTrip(t *testing.T) {
	in := Column{Name: "ts", Type: Timestamp, DisplayName: "Time", Hidden: true, Format: "epoch-seconds"}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Column
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestVisibleAndIndex(t *testing.T) {
	cols := []Column{{Name: "a"}, {Name: "b", Hidden: true}, {Name: "C", DisplayName: "see"}}
	assert.Equal(t, []Column{{Name: "a"}, {Name: "C", DisplayName: "see"}}, Visible(cols))
	assert.Equal(t, 2, Index(cols, "c"))
	assert.Equal(t, -1, Index(cols, "z"))
	assert.Equal(t, "see", cols[2].Label())
	assert.Equal(t, "a", cols[0].Label())
}
