package proxy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatement(t *testing.T) {
	tests := []struct {
		sql  string
		want statement
	}{
		{"SHOW SCHEMAS", statement{kind: showSchemas}},
		{"show tables;", statement{kind: showTables}},
		{"SHOW TABLES FROM web", statement{kind: showTables, schema: "web"}},
		{"DESCRIBE web.access", statement{kind: describeTable, schema: "web", table: "access"}},
		{`desc "Web"."Access"`, statement{kind: describeTable, schema: "Web", table: "Access"}},
		{"SELECT * FROM web.access", statement{kind: selectRows, schema: "web", table: "access", limit: -1}},
		{
			"select Status, path from web.access where year = '2017' and status in (404, 500) limit 10",
			statement{
				kind:    selectRows,
				schema:  "web",
				table:   "access",
				columns: []string{"status", "path"},
				filters: []filter{
					{column: "year", values: []string{"2017"}},
					{column: "status", values: []string{"404", "500"}},
				},
				limit: 10,
			},
		},
		{
			"SELECT a FROM s.t WHERE ok = TRUE AND score = -94.5 AND name = 'it''s'",
			statement{
				kind:    selectRows,
				schema:  "s",
				table:   "t",
				columns: []string{"a"},
				filters: []filter{
					{column: "ok", values: []string{"true"}},
					{column: "score", values: []string{"-94.5"}},
					{column: "name", values: []string{"it's"}},
				},
				limit: -1,
			},
		},
		{`SELECT * FROM metrics."server-1012"`, statement{kind: selectRows, schema: "metrics", table: "server-1012", limit: -1}},
		{`SHOW TABLES IN "Web"`, statement{kind: showTables, schema: "Web"}},
		{"SELECT a.status FROM web.access a LIMIT ALL", statement{kind: selectRows, schema: "web", table: "access", columns: []string{"status"}, limit: -1}},
		{"SELECT * FROM web.access LIMIT 0", statement{kind: selectRows, schema: "web", table: "access", limit: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			got, err := parseStatement(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, &tt.want, got)
		})
	}
}

func TestParseStatement_Errors(t *testing.T) {
	tests := []struct {
		sql         string
		unsupported bool
	}{
		{"", false},
		{"SELECT FROM web.access", false},
		{"SELECT * FROM web.access WHERE a = 'open", false},
		{"SHOW TABLES FROM web extra", false},
		{"SELECT * FROM web.access WHERE a IN ('x'", false},
		{"DESCRIBE", false},
		{"DROP TABLE web.access", true},
		{"SELECT * FROM access", true},
		{"SELECT * FROM web.access WHERE a > 1", true},
		{"SELECT * FROM web.access WHERE a = 1 OR b = 2", true},
		{"SELECT * FROM web.access LIMIT many", true},
		{"SELECT * FROM web.access LIMIT 1.5", true},
		{"SELECT * FROM web.access ORDER BY a", true},
		{"SELECT * FROM web.access a JOIN web.errors e ON a.id = e.id", true},
		{"SELECT count(*) FROM web.access", true},
		{"SELECT * FROM web.access WHERE a = NULL", true},
		{"SHOW search_path", true},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			_, err := parseStatement(tt.sql)
			require.Error(t, err)
			if tt.unsupported {
				var unsupErr *UnsupportedError
				assert.True(t, errors.As(err, &unsupErr), "%v", err)
				assert.Equal(t, "0A000", sqlState(err))
			} else {
				var syntaxErr *SyntaxError
				assert.True(t, errors.As(err, &syntaxErr), "%v", err)
				assert.Equal(t, "42601", sqlState(err))
			}
		})
	}
}
