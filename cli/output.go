package cli

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"lakeview/schema"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
)

// parseOutputFormat checks the --output flag. Empty means table.
func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want %s or %s)", s, formatTable, formatJSON)
}

// outputOf reads --output, which the root command has already checked.
func outputOf(cmd *cobra.Command) outputFormat {
	s, _ := cmd.Flags().GetString("output")
	f, _ := parseOutputFormat(s)
	return f
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// printRows writes rows as a table, or as a JSON array of objects keyed by
// header.
func printRows(cmd *cobra.Command, headers []string, rows [][]string) error {
	if outputOf(cmd) != formatJSON {
		return printTable(cmd.OutOrStdout(), headers, rows)
	}
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		obj := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(row) {
				obj[h] = row[j]
			}
		}
		out[i] = obj
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func jsonLines(w io.Writer) *json.Encoder {
	return json.NewEncoder(w)
}

// jsonValue converts a decoded value for JSON output. Temporal values
// print as text and json columns are embedded rather than quoted.
func jsonValue(col schema.Column, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch col.Type {
	case schema.Date:
		return time.Unix(v.(int64)*24*60*60, 0).UTC().Format(time.DateOnly)
	case schema.Timestamp:
		return time.UnixMilli(v.(int64)).UTC().Format(time.RFC3339Nano)
	case schema.Decimal:
		r := v.(*big.Rat)
		if r.IsInt() {
			return json.Number(r.Num().String())
		}
		return json.Number(strings.TrimRight(r.FloatString(18), "0"))
	case schema.JSON:
		return json.RawMessage(v.(string))
	}
	return v
}
