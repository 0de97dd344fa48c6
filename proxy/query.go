package proxy

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

type statementKind int

const (
	showSchemas statementKind = iota
	showTables
	describeTable
	selectRows
)

func (k statementKind) String() string {
	switch k {
	case showSchemas:
		return "show_schemas"
	case showTables:
		return "show_tables"
	case describeTable:
		return "describe"
	case selectRows:
		return "select"
	default:
		return "unknown"
	}
}

// statement is a query the proxy can answer:
//
//	SHOW SCHEMAS
//	SHOW TABLES [FROM schema]
//	DESCRIBE schema.table
//	SELECT * | col, ... FROM schema.table [WHERE col = 'v' [AND col IN ('a', 'b')]...] [LIMIT n]
type statement struct {
	kind    statementKind
	schema  string
	table   string
	columns []string // nil selects every visible column
	filters []filter
	limit   int64 // negative means no limit
}

// filter restricts a column to a set of textual values.
type filter struct {
	column string
	values []string
}

// SyntaxError reports a query that does not parse.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string {
	return "syntax error: " + e.Msg
}

// UnsupportedError reports valid SQL outside what the proxy answers.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string {
	return "not supported: " + e.Msg
}

func unsupported(format string, args ...interface{}) error {
	return &UnsupportedError{Msg: fmt.Sprintf(format, args...)}
}

// parseStatement parses Postgres SQL with the Postgres parser. DESCRIBE and
// SHOW TABLES FROM are not Postgres syntax and are dispatched on their
// leading keywords.
func parseStatement(sql string) (*statement, error) {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	words := strings.Fields(text)

	switch {
	case len(words) > 0 && (strings.EqualFold(words[0], "DESCRIBE") || strings.EqualFold(words[0], "DESC")):
		return parseDescribe(strings.TrimSpace(text[len(words[0]):]))
	case len(words) > 2 && strings.EqualFold(words[0], "SHOW") && strings.EqualFold(words[1], "TABLES"):
		return parseShowTablesFrom(words[2:])
	}

	result, err := pg_query.Parse(text)
	if err != nil {
		return nil, &SyntaxError{Msg: err.Error()}
	}
	if len(result.Stmts) != 1 {
		return nil, &SyntaxError{Msg: fmt.Sprintf("expected one statement, found %d", len(result.Stmts))}
	}

	switch n := result.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_VariableShowStmt:
		switch strings.ToLower(n.VariableShowStmt.Name) {
		case "schemas":
			return &statement{kind: showSchemas}, nil
		case "tables":
			return &statement{kind: showTables}, nil
		}
		return nil, unsupported("SHOW %s", n.VariableShowStmt.Name)
	case *pg_query.Node_SelectStmt:
		return selectStatement(n.SelectStmt)
	}
	return nil, unsupported("only SHOW, DESCRIBE and SELECT are answered")
}

// parseDescribe reads the table name by parsing it as a FROM item, so
// quoting and case folding follow Postgres.
func parseDescribe(name string) (*statement, error) {
	if name == "" {
		return nil, &SyntaxError{Msg: "DESCRIBE needs a table name"}
	}
	result, err := pg_query.Parse("SELECT * FROM " + name)
	if err != nil {
		return nil, &SyntaxError{Msg: err.Error()}
	}
	if len(result.Stmts) != 1 {
		return nil, &SyntaxError{Msg: "DESCRIBE needs a single table name"}
	}
	sel, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return nil, &SyntaxError{Msg: "DESCRIBE needs a single table name"}
	}
	st, err := selectStatement(sel.SelectStmt)
	if err != nil {
		return nil, err
	}
	return &statement{kind: describeTable, schema: st.schema, table: st.table}, nil
}

func parseShowTablesFrom(rest []string) (*statement, error) {
	if len(rest) != 2 || !(strings.EqualFold(rest[0], "FROM") || strings.EqualFold(rest[0], "IN")) {
		return nil, &SyntaxError{Msg: "expected SHOW TABLES [FROM schema]"}
	}
	schemaName, err := identifier(rest[1])
	if err != nil {
		return nil, err
	}
	return &statement{kind: showTables, schema: schemaName}, nil
}

// identifier folds an unquoted name to lower case and unquotes a quoted one.
func identifier(s string) (string, error) {
	if strings.HasPrefix(s, `"`) {
		if len(s) < 2 || !strings.HasSuffix(s, `"`) {
			return "", &SyntaxError{Msg: fmt.Sprintf("unterminated identifier %s", s)}
		}
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`), nil
	}
	return strings.ToLower(s), nil
}

func selectStatement(sel *pg_query.SelectStmt) (*statement, error) {
	switch {
	case sel.Op != pg_query.SetOperation_SETOP_NONE:
		return nil, unsupported("set operations")
	case sel.WithClause != nil:
		return nil, unsupported("WITH")
	case len(sel.DistinctClause) > 0:
		return nil, unsupported("DISTINCT")
	case len(sel.GroupClause) > 0, sel.HavingClause != nil:
		return nil, unsupported("aggregation")
	case len(sel.SortClause) > 0:
		return nil, unsupported("ORDER BY")
	case sel.LimitOffset != nil:
		return nil, unsupported("OFFSET")
	case len(sel.ValuesLists) > 0:
		return nil, unsupported("VALUES")
	}

	st := &statement{kind: selectRows, limit: -1}

	if len(sel.FromClause) != 1 {
		return nil, unsupported("exactly one table must be named in FROM")
	}
	rv, ok := sel.FromClause[0].Node.(*pg_query.Node_RangeVar)
	if !ok {
		return nil, unsupported("FROM accepts a table name only")
	}
	if rv.RangeVar.Schemaname == "" || rv.RangeVar.Catalogname != "" {
		return nil, unsupported("tables are named schema.table")
	}
	st.schema, st.table = rv.RangeVar.Schemaname, rv.RangeVar.Relname

	columns, err := targetColumns(sel.TargetList)
	if err != nil {
		return nil, err
	}
	st.columns = columns

	if sel.WhereClause != nil {
		filters, err := whereFilters(sel.WhereClause)
		if err != nil {
			return nil, err
		}
		st.filters = filters
	}

	if sel.LimitCount != nil {
		limit, err := limitCount(sel.LimitCount)
		if err != nil {
			return nil, err
		}
		st.limit = limit
	}
	return st, nil
}

// targetColumns returns nil for a lone *.
func targetColumns(targets []*pg_query.Node) ([]string, error) {
	if len(targets) == 0 {
		return nil, &SyntaxError{Msg: "SELECT needs at least one column"}
	}
	var columns []string
	for _, t := range targets {
		rt, ok := t.Node.(*pg_query.Node_ResTarget)
		if !ok || rt.ResTarget.Val == nil {
			return nil, unsupported("select list entries must be column names")
		}
		if rt.ResTarget.Name != "" {
			return nil, unsupported("column aliases")
		}
		ref, ok := rt.ResTarget.Val.Node.(*pg_query.Node_ColumnRef)
		if !ok {
			return nil, unsupported("select list entries must be column names")
		}
		fields := ref.ColumnRef.Fields
		if _, star := fields[len(fields)-1].Node.(*pg_query.Node_AStar); star {
			if len(targets) != 1 {
				return nil, unsupported("* mixed with column names")
			}
			return nil, nil
		}
		name, err := columnName(ref.ColumnRef)
		if err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, nil
}

// columnName takes the last field, so qualified references name their column.
func columnName(ref *pg_query.ColumnRef) (string, error) {
	if len(ref.Fields) == 0 {
		return "", &SyntaxError{Msg: "empty column reference"}
	}
	s, ok := ref.Fields[len(ref.Fields)-1].Node.(*pg_query.Node_String_)
	if !ok {
		return "", unsupported("column reference")
	}
	return s.String_.Sval, nil
}

func whereFilters(where *pg_query.Node) ([]filter, error) {
	var terms []*pg_query.Node
	if b, ok := where.Node.(*pg_query.Node_BoolExpr); ok {
		if b.BoolExpr.Boolop != pg_query.BoolExprType_AND_EXPR {
			return nil, unsupported("WHERE combines conditions with AND only")
		}
		terms = b.BoolExpr.Args
	} else {
		terms = []*pg_query.Node{where}
	}

	filters := make([]filter, 0, len(terms))
	for _, term := range terms {
		f, err := comparison(term)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// comparison maps col = literal and col IN (literal, ...).
func comparison(term *pg_query.Node) (filter, error) {
	e, ok := term.Node.(*pg_query.Node_AExpr)
	if !ok {
		return filter{}, unsupported("WHERE accepts col = value and col IN (...)")
	}
	expr := e.AExpr
	if len(expr.Name) != 1 || expr.Name[0].GetString_().GetSval() != "=" {
		return filter{}, unsupported("WHERE accepts col = value and col IN (...)")
	}
	ref, ok := expr.Lexpr.GetNode().(*pg_query.Node_ColumnRef)
	if !ok {
		return filter{}, unsupported("the left side of a condition must be a column")
	}
	col, err := columnName(ref.ColumnRef)
	if err != nil {
		return filter{}, err
	}
	f := filter{column: col}

	switch expr.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		v, err := literal(expr.Rexpr)
		if err != nil {
			return filter{}, err
		}
		f.values = []string{v}
	case pg_query.A_Expr_Kind_AEXPR_IN:
		list, ok := expr.Rexpr.GetNode().(*pg_query.Node_List)
		if !ok {
			return filter{}, unsupported("IN takes a list of values")
		}
		for _, item := range list.List.Items {
			v, err := literal(item)
			if err != nil {
				return filter{}, err
			}
			f.values = append(f.values, v)
		}
	default:
		return filter{}, unsupported("WHERE accepts col = value and col IN (...)")
	}
	return f, nil
}

// literal renders a constant as the text the row check compares against.
func literal(n *pg_query.Node) (string, error) {
	c, ok := n.GetNode().(*pg_query.Node_AConst)
	if !ok || c.AConst.Isnull {
		return "", unsupported("conditions compare against non-null constants")
	}
	switch v := c.AConst.Val.(type) {
	case *pg_query.A_Const_Sval:
		return v.Sval.Sval, nil
	case *pg_query.A_Const_Ival:
		return strconv.FormatInt(int64(v.Ival.Ival), 10), nil
	case *pg_query.A_Const_Fval:
		return v.Fval.Fval, nil
	case *pg_query.A_Const_Boolval:
		return strconv.FormatBool(v.Boolval.Boolval), nil
	}
	return "", unsupported("constant type")
}

func limitCount(n *pg_query.Node) (int64, error) {
	c, ok := n.GetNode().(*pg_query.Node_AConst)
	if !ok {
		return 0, unsupported("LIMIT takes a row count")
	}
	if c.AConst.Isnull {
		// LIMIT ALL
		return -1, nil
	}
	switch v := c.AConst.Val.(type) {
	case *pg_query.A_Const_Ival:
		if v.Ival.Ival < 0 {
			return 0, &SyntaxError{Msg: "LIMIT must not be negative"}
		}
		return int64(v.Ival.Ival), nil
	case *pg_query.A_Const_Fval:
		n, err := strconv.ParseInt(v.Fval.Fval, 10, 64)
		if err != nil || n < 0 {
			return 0, unsupported("LIMIT takes a whole row count, got %s", v.Fval.Fval)
		}
		return n, nil
	}
	return 0, unsupported("LIMIT takes a row count")
}
