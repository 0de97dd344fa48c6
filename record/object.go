package record

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Field is one top-level member of a JSON object. Raw is the value's text,
// possibly with surrounding whitespace.
type Field struct {
	Name string
	Raw  []byte
}

// ObjectFields returns the top-level fields of a JSON object in the order
// they appear. Only the first occurrence of a repeated key is kept. The
// input is assumed to be well-formed.
func ObjectFields(obj []byte) ([]Field, error) {
	var fields []Field
	seen := make(map[string]struct{})
	depth := 0
	expectKey := false
	key, valueStart := "", -1

	endValue := func(end int) {
		if valueStart < 0 {
			return
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			fields = append(fields, Field{Name: key, Raw: obj[valueStart:end]})
		}
		valueStart = -1
	}

	for i := 0; i < len(obj); i++ {
		switch c := obj[i]; c {
		case '"':
			end := stringEnd(obj, i)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			if depth == 1 && expectKey {
				if bytes.IndexByte(obj[i:end], '\\') < 0 {
					key = string(obj[i+1 : end])
				} else if err := json.Unmarshal(obj[i:end+1], &key); err != nil {
					return nil, fmt.Errorf("invalid key at offset %d: %w", i, err)
				}
				expectKey = false
			}
			i = end
		case ':':
			if depth == 1 {
				valueStart = i + 1
			}
		case '{', '[':
			depth++
			if depth == 1 && c == '{' {
				expectKey = true
			}
		case '}', ']':
			if depth == 1 {
				endValue(i)
			}
			depth--
		case ',':
			if depth == 1 {
				endValue(i)
				expectKey = true
			}
		}
	}
	return fields, nil
}

func stringEnd(b []byte, start int) int {
	for j := start + 1; j < len(b); j++ {
		switch b[j] {
		case '\\':
			j++
		case '"':
			return j
		}
	}
	return -1
}

// firstValues replaces the values of repeated keys in obj, which the decoder
// fills with the last occurrence, by their first occurrence.
func firstValues(data []byte, obj jsonFields) jsonFields {
	fields, err := ObjectFields(data)
	if err != nil || len(fields) == len(obj) {
		return obj
	}
	for _, f := range fields {
		obj[f.Name] = bytes.TrimSpace(f.Raw)
	}
	return obj
}
