package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Temporal format annotations understood on date and timestamp columns.
const (
	EpochMillis  = "epoch-millis"
	EpochSeconds = "epoch-seconds"
	EpochDays    = "epoch-days"
	ISO8601      = "iso8601"
)

// goLayoutPrefix marks a format written as a Go reference layout, as in
// "go:2006-01-02 15:04". Any other format is read as a Java-style pattern.
const goLayoutPrefix = "go:"

const (
	millisPerSecond = 1000
	millisPerDay    = 24 * 60 * 60 * millisPerSecond
)

type formatKind int

const (
	formatDefault formatKind = iota
	formatEpochMillis
	formatEpochSeconds
	formatEpochDays
	formatISO
	formatPattern
)

// timeFormat is a parsed column format annotation.
type timeFormat struct {
	kind   formatKind
	layout string
}

func parseTimeFormat(s string) timeFormat {
	if layout, ok := strings.CutPrefix(strings.TrimSpace(s), goLayoutPrefix); ok {
		return timeFormat{kind: formatPattern, layout: layout}
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return timeFormat{kind: formatDefault}
	case EpochMillis, "millis", "epoch_millis":
		return timeFormat{kind: formatEpochMillis}
	case EpochSeconds, "seconds", "epoch_seconds":
		return timeFormat{kind: formatEpochSeconds}
	case EpochDays, "days", "epoch_days":
		return timeFormat{kind: formatEpochDays}
	case ISO8601, "iso-8601", "iso_8601":
		return timeFormat{kind: formatISO}
	}
	return timeFormat{kind: formatPattern, layout: layoutFromPattern(s)}
}

func (f timeFormat) numeric() bool {
	return f.kind == formatEpochMillis || f.kind == formatEpochSeconds || f.kind == formatEpochDays
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 date or timestamp", s)
}

// epochToMillis scales a numeric value in unit f to epoch milliseconds.
// defaultKind applies when the column carries no numeric annotation.
func epochToMillis(num string, f timeFormat, defaultKind formatKind) (int64, error) {
	kind := f.kind
	if !f.numeric() {
		kind = defaultKind
	}
	var scale int64
	switch kind {
	case formatEpochSeconds:
		scale = millisPerSecond
	case formatEpochDays:
		scale = millisPerDay
	default:
		scale = 1
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n > math.MaxInt64/scale || n < math.MinInt64/scale {
			return 0, fmt.Errorf("%s is out of range for an epoch value", num)
		}
		return n * scale, nil
	}
	fl, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not numeric", num)
	}
	ms := math.Round(fl * float64(scale))
	// float64(math.MaxInt64) rounds up to 2^63, which is itself out of range.
	if math.IsNaN(ms) || ms >= float64(math.MaxInt64) || ms < float64(math.MinInt64) {
		return 0, fmt.Errorf("%s is out of range for an epoch value", num)
	}
	return int64(ms), nil
}

// textToTime parses a textual temporal value under f.
func textToTime(s string, f timeFormat) (time.Time, error) {
	if f.kind == formatPattern {
		t, err := time.Parse(f.layout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q does not match pattern %q: %w", s, f.layout, err)
		}
		return t, nil
	}
	return parseISO(s)
}

// timestampMillis coerces a timestamp value to epoch milliseconds. Bare
// numbers default to epoch milliseconds; text defaults to ISO-8601.
func timestampMillis(v value, f timeFormat) (int64, error) {
	if v.kind == kindNumber || (v.kind == kindString && f.numeric()) {
		return epochToMillis(v.text, f, formatEpochMillis)
	}
	if v.kind != kindString {
		return 0, fmt.Errorf("cannot read %s as a timestamp", v.kind)
	}
	t, err := textToTime(v.text, f)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// dateDays coerces a date value to days since the epoch. Bare numbers
// default to epoch days.
func dateDays(v value, f timeFormat) (int64, error) {
	if v.kind == kindNumber || (v.kind == kindString && f.numeric()) {
		ms, err := epochToMillis(v.text, f, formatEpochDays)
		if err != nil {
			return 0, err
		}
		return floorDiv(ms, millisPerDay), nil
	}
	if v.kind != kindString {
		return 0, fmt.Errorf("cannot read %s as a date", v.kind)
	}
	t, err := textToTime(v.text, f)
	if err != nil {
		return 0, err
	}
	return floorDiv(t.UnixMilli(), millisPerDay), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// javaTokens maps date/time pattern letters (as used in Java-style
// patterns) to Go reference-layout fragments, keyed by letter and run length.
var javaTokens = map[string]string{
	"yyyy": "2006", "yy": "06", "uuuu": "2006",
	"MMMM": "January", "MMM": "Jan", "MM": "01", "M": "1",
	"dd": "02", "d": "2",
	"EEEE": "Monday", "EEE": "Mon",
	"HH": "15", "hh": "03", "h": "3",
	"mm": "04", "m": "4",
	"ss": "05", "s": "5",
	"a": "PM",
	"Z": "-0700", "ZZ": "-0700", "ZZZ": "-0700",
	"X": "Z07", "XX": "Z0700", "XXX": "Z07:00",
	"z": "MST",
}

// layoutFromPattern converts a Java-style pattern such as
// "yyyy-MM-dd'T'HH:mm:ss.SSS" to a Go layout.
func layoutFromPattern(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); {
		c := p[i]
		if c == '\'' {
			end := strings.IndexByte(p[i+1:], '\'')
			if end < 0 {
				b.WriteString(p[i+1:])
				break
			}
			b.WriteString(p[i+1 : i+1+end])
			i += end + 2
			continue
		}

		j := i
		for j < len(p) && p[j] == c {
			j++
		}
		run := p[i:j]
		switch {
		case c == 'S':
			b.WriteString(strings.Repeat("0", len(run)))
		case javaTokens[run] != "":
			b.WriteString(javaTokens[run])
		default:
			b.WriteString(run)
		}
		i = j
	}
	return b.String()
}
