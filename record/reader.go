package record

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// fields looks up one named field of the current row.
type fields interface {
	field(name string) (value, error)
}

// rows yields records from a decompressed object. line reports the 1-based
// line the last record started on.
type rows interface {
	next() (fields, error)
	line() int64
}

type jsonFields map[string]json.RawMessage

func (f jsonFields) field(name string) (value, error) {
	raw, ok := f[name]
	if !ok {
		return value{kind: kindMissing}, nil
	}
	return fromRaw(raw)
}

// jsonRows reads newline-delimited JSON. A line may hold several objects
// separated by whitespace; an object may not span lines.
type jsonRows struct {
	r       *bufio.Reader
	lineNo  int64
	pending []jsonFields
	eof     bool
}

func newJSONRows(r io.Reader) *jsonRows {
	return &jsonRows{r: bufio.NewReaderSize(r, 64<<10)}
}

func (j *jsonRows) line() int64 { return j.lineNo }

func (j *jsonRows) next() (fields, error) {
	for len(j.pending) == 0 {
		if j.eof {
			return nil, io.EOF
		}
		data, err := j.r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			j.eof = true
			if len(data) == 0 {
				return nil, io.EOF
			}
		} else if err != nil {
			return nil, err
		}
		j.lineNo++

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		objs, err := decodeLine(data)
		if err != nil {
			return nil, err
		}
		j.pending = objs
	}

	f := j.pending[0]
	j.pending = j.pending[1:]
	return f, nil
}

// decodeLine decodes every JSON object on one line. Most lines hold a
// single object and take the direct path.
func decodeLine(data []byte) ([]jsonFields, error) {
	if data[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object, found %s", truncate(data, 32))
	}
	var obj jsonFields
	err := json.Unmarshal(data, &obj)
	if err == nil {
		return []jsonFields{firstValues(data, obj)}, nil
	}

	objs, splitErr := splitObjects(data)
	if splitErr != nil {
		return nil, splitErr
	}
	if len(objs) < 2 {
		return nil, err
	}
	return objs, nil
}

func splitObjects(data []byte) ([]jsonFields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out []jsonFields
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			return nil, fmt.Errorf("expected a JSON object, found %s", truncate(raw, 32))
		}
		var obj jsonFields
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		out = append(out, firstValues(raw, obj))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type csvFields struct {
	header map[string]int
	record []string
}

func (c csvFields) field(name string) (value, error) {
	i, ok := c.header[name]
	if !ok || i >= len(c.record) {
		return value{kind: kindMissing}, nil
	}
	return fromText(c.record[i]), nil
}

// csvRows reads comma-separated text whose first record names the columns.
type csvRows struct {
	r      *csv.Reader
	header map[string]int
	lineNo int64
}

func newCSVRows(r io.Reader) *csvRows {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return &csvRows{r: cr}
}

func (c *csvRows) line() int64 { return c.lineNo }

func (c *csvRows) next() (fields, error) {
	if c.header == nil {
		header, err := c.readHeader()
		if err != nil {
			return nil, err
		}
		c.header = header
	}
	rec, err := c.r.Read()
	if err != nil {
		return nil, err
	}
	line, _ := c.r.FieldPos(0)
	c.lineNo = int64(line)
	return csvFields{header: c.header, record: rec}, nil
}

func (c *csvRows) readHeader() (map[string]int, error) {
	names, err := ReadCSVHeader(c.r)
	c.lineNo = 1
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := header[name]; !dup {
			header[name] = i
		}
	}
	return header, nil
}

// ReadCSVHeader reads the header record of a CSV object. The result is
// empty when the object has no records.
func ReadCSVHeader(r *csv.Reader) ([]string, error) {
	names, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
	}
	if len(names) > 0 {
		names[0] = strings.TrimPrefix(names[0], "\ufeff")
	}
	return names, nil
}
