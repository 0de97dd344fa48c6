package record

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakeview/schema"
)

func raw(t *testing.T, s string) value {
	t.Helper()
	v, err := fromRaw(json.RawMessage(s))
	require.NoError(t, err)
	return v
}

func TestFromRaw_Kinds(t *testing.T) {
	tests := map[string]valueKind{
		`null`:    kindNull,
		`true`:    kindBool,
		`-12.5e3`: kindNumber,
		`"x"`:     kindString,
		`{"a":1}`: kindObject,
		`[1]`:     kindArray,
		``:        kindMissing,
	}
	for in, want := range tests {
		assert.Equal(t, want, raw(t, in).kind, in)
	}
	assert.Equal(t, "a\"b", raw(t, `"a\"b"`).text)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		typ  schema.Type
		in   string
		want interface{}
	}{
		{"integer from float literal", schema.Integer, `3.0`, int64(3)},
		{"integer from text", schema.Bigint, `"42"`, int64(42)},
		{"integer from exponent", schema.Integer, `1e3`, int64(1000)},
		{"integer at its upper bound", schema.Integer, `2147483647`, int64(2147483647)},
		{"integer at its lower bound", schema.Integer, `-2147483648`, int64(-2147483648)},
		{"bigint beyond int32", schema.Bigint, `2147483648`, int64(2147483648)},
		{"bigint at its upper bound", schema.Bigint, `9223372036854775807`, int64(9223372036854775807)},
		{"double from integer", schema.Double, `7`, float64(7)},
		{"boolean from text", schema.Boolean, `"false"`, false},
		{"string from number", schema.String, `12`, "12"},
		{"string from object", schema.String, `{"a":1}`, `{"a":1}`},
		{"json keeps quoting", schema.JSON, `"x"`, `"x"`},
		{"binary base64", schema.Binary, `"aGk="`, []byte("hi")},
		{"null", schema.Integer, `null`, nil},
		{"string map drops nulls", schema.StringMap, `{"a":"1","b":null}`, map[string]string{"a": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(schema.Column{Name: "c", Type: tt.typ}, timeFormat{}, raw(t, tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Mismatch(t *testing.T) {
	for _, tt := range []struct {
		typ schema.Type
		in  string
	}{
		{schema.Boolean, `1`},
		{schema.Integer, `{"a":1}`},
		{schema.Double, `[1]`},
		{schema.DoubleMap, `{"a":"x"}`},
		{schema.DoubleMap, `{"a":{}}`},
		{schema.StringMap, `"flat"`},
	} {
		_, err := coerce(schema.Column{Name: "c", Type: tt.typ}, timeFormat{}, raw(t, tt.in))
		assert.Error(t, err, "%s <- %s", tt.typ, tt.in)
	}
}

func TestCoerce_IntegerRejectsLossyValues(t *testing.T) {
	tests := []struct {
		name string
		typ  schema.Type
		in   string
		msg  string
	}{
		{"fraction", schema.Integer, `1.9`, "not a whole number"},
		{"negative fraction", schema.Bigint, `-0.5`, "not a whole number"},
		{"fraction as text", schema.Bigint, `"2.25"`, "not a whole number"},
		{"beyond int64", schema.Bigint, `1e30`, "out of range"},
		{"just beyond int64", schema.Bigint, `9223372036854775808`, "out of range"},
		{"beyond int32", schema.Integer, `2147483648`, "out of range for integer"},
		{"below int32", schema.Integer, `-2147483649`, "out of range for integer"},
		{"not a number", schema.Integer, `"abc"`, "not an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coerce(schema.Column{Name: "c", Type: tt.typ}, timeFormat{}, raw(t, tt.in))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}
