package record

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/goccy/go-json"

	"lakeview/schema"
)

type valueKind int

const (
	kindMissing valueKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindObject
	kindArray
)

func (k valueKind) String() string {
	switch k {
	case kindMissing:
		return "missing"
	case kindNull:
		return "null"
	case kindBool:
		return "boolean"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	}
	return "unknown"
}

// value is one field of a record before coercion. raw holds the original
// JSON text; text holds the unquoted string or the number literal.
type value struct {
	kind valueKind
	raw  []byte
	text string
}

func fromRaw(raw json.RawMessage) (value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return value{kind: kindMissing}, nil
	}
	switch raw[0] {
	case 'n':
		return value{kind: kindNull, raw: raw}, nil
	case 't', 'f':
		return value{kind: kindBool, raw: raw, text: string(raw)}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return value{}, err
		}
		return value{kind: kindString, raw: raw, text: s}, nil
	case '{':
		return value{kind: kindObject, raw: raw}, nil
	case '[':
		return value{kind: kindArray, raw: raw}, nil
	default:
		return value{kind: kindNumber, raw: raw, text: string(raw)}, nil
	}
}

// fromText wraps a delimited-text cell. Empty cells are null.
func fromText(s string) value {
	if s == "" {
		return value{kind: kindNull}
	}
	return value{kind: kindString, raw: []byte(strconv.Quote(s)), text: s}
}

// coerce converts v to the Go representation of col's type:
//
//	boolean            bool
//	integer, bigint    int64
//	double             float64
//	decimal            *big.Rat
//	string, json       string
//	binary             []byte
//	date               int64 days since the epoch
//	timestamp          int64 milliseconds since the epoch
//	map(string,string) map[string]string
//	map(string,double) map[string]float64
//
// Missing and null fields coerce to nil.
func coerce(col schema.Column, f timeFormat, v value) (interface{}, error) {
	if v.kind == kindMissing || v.kind == kindNull {
		return nil, nil
	}

	switch col.Type {
	case schema.Boolean:
		switch v.kind {
		case kindBool, kindString:
			return strconv.ParseBool(v.text)
		}
	case schema.Integer, schema.Bigint:
		if v.kind == kindNumber || v.kind == kindString {
			n, err := wholeNumber(v.text)
			if err != nil {
				return nil, err
			}
			if col.Type == schema.Integer && (n < math.MinInt32 || n > math.MaxInt32) {
				return nil, fmt.Errorf("%s is out of range for integer", v.text)
			}
			return n, nil
		}
	case schema.Double:
		if v.kind == kindNumber || v.kind == kindString {
			return strconv.ParseFloat(v.text, 64)
		}
	case schema.Decimal:
		if v.kind == kindNumber || v.kind == kindString {
			r, ok := new(big.Rat).SetString(v.text)
			if !ok {
				return nil, fmt.Errorf("%q is not a decimal", v.text)
			}
			return r, nil
		}
	case schema.String:
		if v.kind == kindString {
			return v.text, nil
		}
		return string(v.raw), nil
	case schema.JSON:
		return string(v.raw), nil
	case schema.Binary:
		if v.kind == kindString {
			if b, err := base64.StdEncoding.DecodeString(v.text); err == nil {
				return b, nil
			}
			return []byte(v.text), nil
		}
	case schema.Date:
		return dateDays(v, f)
	case schema.Timestamp:
		return timestampMillis(v, f)
	case schema.StringMap:
		if v.kind == kindObject {
			return toMap(v.raw, func(e value) (string, bool, error) {
				if e.kind == kindString {
					return e.text, true, nil
				}
				return string(e.raw), true, nil
			})
		}
	case schema.DoubleMap:
		if v.kind == kindObject {
			return toMap(v.raw, func(e value) (float64, bool, error) {
				if e.kind != kindNumber && e.kind != kindString {
					return 0, false, fmt.Errorf("map value %s is not numeric", e.raw)
				}
				fl, err := strconv.ParseFloat(e.text, 64)
				return fl, err == nil, err
			})
		}
	default:
		return nil, fmt.Errorf("unsupported column type %s", col.Type)
	}
	return nil, fmt.Errorf("cannot read %s as %s", v.kind, col.Type)
}

// toMap decodes a JSON object into a native map. Null entries are dropped.
func toMap[V any](raw []byte, conv func(value) (V, bool, error)) (map[string]V, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]V, len(fields))
	for k, r := range fields {
		e, err := fromRaw(r)
		if err != nil {
			return nil, err
		}
		if e.kind == kindNull {
			continue
		}
		v, ok, err := conv(e)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// wholeNumber reads text as an exact integer. Exponent and decimal forms are
// accepted only when they denote a whole number that fits in 64 bits.
func wholeNumber(text string) (int64, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok {
		return 0, fmt.Errorf("%q is not an integer", text)
	}
	if !r.IsInt() {
		return 0, fmt.Errorf("%s is not a whole number", text)
	}
	if !r.Num().IsInt64() {
		return 0, fmt.Errorf("%s is out of range for bigint", text)
	}
	return r.Num().Int64(), nil
}
