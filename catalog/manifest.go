package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"lakeview/lakeerr"
	"lakeview/schema"
)

// Manifest entries are decoded tolerantly: YAML flow syntax is a superset
// of JSON that also accepts unquoted and single-quoted keys, and comments
// are stripped before decoding.
type manifestTable struct {
	Name                string             `yaml:"name"`
	RootPath            string             `yaml:"rootPath"`
	DataFileType        string             `yaml:"dataFileType"`
	PartitionDefinition *manifestPartition `yaml:"partitionDefinition"`
	ColumnConfig        []manifestColumn   `yaml:"columnConfig"`
}

type manifestPartition struct {
	DirectoryFilterRegex      string   `yaml:"directoryFilterRegex"`
	FilterRegex               string   `yaml:"filterRegex"`
	DirectoryFilterPartitions []string `yaml:"directoryFilterPartitions"`
	FilterPartitions          []string `yaml:"filterPartitions"`
}

type manifestColumn struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	DisplayName string `yaml:"displayName"`
	Hidden      bool   `yaml:"hidden"`
	Format      string `yaml:"format"`
	Comment     string `yaml:"comment"`
}

// ParseManifest decodes a manifest document into tables keyed by name.
// Duplicate names abort the parse.
func ParseManifest(data []byte) (map[string]*LogicalTable, error) {
	var entries []manifestTable
	if err := yaml.Unmarshal(stripComments(data), &entries); err != nil {
		return nil, lakeerr.ErrIllegalArgument("manifest", "", "%v", err)
	}

	tables := make(map[string]*LogicalTable, len(entries))
	for i, e := range entries {
		t, err := e.toTable(i)
		if err != nil {
			return nil, err
		}
		if _, dup := tables[t.Name]; dup {
			return nil, lakeerr.ErrIllegalArgument("name", t.Name, "duplicate table name")
		}
		tables[t.Name] = t
	}
	return tables, nil
}

func (e manifestTable) toTable(i int) (*LogicalTable, error) {
	field := func(name string) string { return fmt.Sprintf("[%d].%s", i, name) }

	if strings.TrimSpace(e.Name) == "" {
		return nil, lakeerr.ErrIllegalArgument(field("name"), e.Name, "table name is required")
	}
	if strings.TrimSpace(e.RootPath) == "" {
		return nil, lakeerr.ErrIllegalArgument(field("rootPath"), e.RootPath, "root path is required for table %s", e.Name)
	}
	ft, err := ParseDataFileType(e.DataFileType)
	if err != nil {
		return nil, lakeerr.ErrIllegalArgument(field("dataFileType"), e.DataFileType, "%v", err)
	}

	t := &LogicalTable{
		Name:         e.Name,
		RootPath:     e.RootPath,
		DataFileType: ft,
	}

	if p := e.PartitionDefinition; p != nil {
		if err := checkPattern(field("partitionDefinition.directoryFilterRegex"), p.DirectoryFilterRegex, p.DirectoryFilterPartitions); err != nil {
			return nil, err
		}
		if err := checkPattern(field("partitionDefinition.filterRegex"), p.FilterRegex, p.FilterPartitions); err != nil {
			return nil, err
		}
		t.PartitionDefinition = &PartitionDefinition{
			DirectoryFilterRegex:      p.DirectoryFilterRegex,
			FilterRegex:               p.FilterRegex,
			DirectoryFilterPartitions: nonNil(p.DirectoryFilterPartitions),
			FilterPartitions:          nonNil(p.FilterPartitions),
		}
	}

	for j, c := range e.ColumnConfig {
		colField := field(fmt.Sprintf("columnConfig[%d]", j))
		if strings.TrimSpace(c.Name) == "" {
			return nil, lakeerr.ErrIllegalArgument(colField+".name", c.Name, "column name is required")
		}
		typ, err := schema.ParseType(c.Type)
		if err != nil {
			return nil, lakeerr.ErrIllegalArgument(colField+".type", c.Type, "%v", err)
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:        c.Name,
			Type:        typ,
			DisplayName: c.DisplayName,
			Hidden:      c.Hidden,
			Format:      c.Format,
			Comment:     c.Comment,
		})
	}
	return t, nil
}

// checkPattern compiles a partition regex. Partition indexes are checked
// lazily at match time, not here.
func checkPattern(field, pattern string, columns []string) error {
	if pattern == "" {
		if len(columns) > 0 {
			return lakeerr.ErrIllegalArgument(field, "", "partition columns %v declared without a regex", columns)
		}
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return lakeerr.ErrIllegalArgument(field, pattern, "%v", err)
	}
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return lakeerr.ErrIllegalArgument(field, pattern, "empty partition column name")
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MarshalManifest encodes tables in the canonical manifest format.
func MarshalManifest(tables []*LogicalTable) ([]byte, error) {
	return json.MarshalIndent(tables, "", "  ")
}

var manifestKey = regexp.MustCompile(`^(?:-\s*)?(?:[A-Za-z_][A-Za-z0-9_.-]*|"[^"]*"|'[^']*')$`)

// stripComments removes // and /* */ comments outside string literals,
// turns tabs into spaces, and puts a space after the colon that ends a key
// so compact JSON reads as YAML flow syntax. A colon inside an unquoted
// value, as in HH:mm, is left alone.
func stripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	var quote byte
	segment := 0 // start in out of the current key or value
	for i := 0; i < len(data); i++ {
		c := data[i]
		if quote != 0 {
			out = append(out, c)
			switch {
			case c == '\\' && quote == '"' && i+1 < len(data):
				i++
				out = append(out, data[i])
			case c == quote:
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
				segment = len(out)
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			end := strings.Index(string(data[i+2:]), "*/")
			if end < 0 {
				return out
			}
			// keep line numbers stable for YAML error messages
			out = append(out, []byte(strings.Repeat("\n", strings.Count(string(data[i:i+2+end]), "\n")))...)
			i += end + 3
		case c == '\t':
			out = append(out, ' ')
		case c == ':' && i+1 < len(data) && !isSpace(data[i+1]) && manifestKey.MatchString(strings.TrimSpace(string(out[segment:]))):
			out = append(out, ':', ' ')
			segment = len(out)
		case c == '{' || c == '[' || c == ',' || c == '\n':
			out = append(out, c)
			segment = len(out)
		default:
			out = append(out, c)
		}
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
