package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lakeview/connector"
	"lakeview/export"
	"lakeview/metrics"
	"lakeview/partition"
	"lakeview/proxy"
	"lakeview/record"
	"lakeview/schema"
	"lakeview/split"
)

func parseTableName(arg string) (string, string, error) {
	schemaName, table, ok := strings.Cut(arg, ".")
	if !ok || schemaName == "" || table == "" {
		return "", "", fmt.Errorf("table %q must be written as schema.table", arg)
	}
	return schemaName, table, nil
}

// parseWhere turns repeated col=v1,v2 flags into a partition constraint.
func parseWhere(exprs []string) (partition.Constraint, error) {
	var c partition.Constraint
	for _, expr := range exprs {
		col, vals, ok := strings.Cut(expr, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" || vals == "" {
			return nil, fmt.Errorf("invalid --where %q: use column=value[,value...]", expr)
		}
		c = c.With(col, partition.In(strings.Split(vals, ",")...))
	}
	return c, nil
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables [schema]",
		Short: "List the tables of one or every schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaName := ""
			if len(args) == 1 {
				schemaName = args[0]
			}
			tables, err := a.conn.Metadata.ListTables(cmd.Context(), schemaName)
			if err != nil {
				return err
			}
			rows := make([][]string, len(tables))
			for i, t := range tables {
				rows[i] = []string{t.Schema, t.Table}
			}
			return printRows(cmd, []string{"schema", "table"}, rows)
		},
	}
}

func newColumnsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <schema.table>",
		Short: "Show the columns of a table, inferring them when the manifest declares none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.tableHandle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			handles, err := a.conn.Metadata.GetColumnHandles(cmd.Context(), h)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(handles))
			for _, ch := range handles {
				c := ch.Column
				rows = append(rows, []string{c.Label(), c.Type.String(), c.Format, strconv.FormatBool(c.Hidden), c.Comment})
			}
			return printRows(cmd, []string{"column", "type", "format", "hidden", "comment"}, rows)
		},
	}
}

func newSplitsCmd(a *app) *cobra.Command {
	var where []string
	cmd := &cobra.Command{
		Use:   "splits <schema.table>",
		Short: "List the objects a scan of the table would read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			splits, err := a.splits(cmd.Context(), args[0], where)
			if err != nil {
				return err
			}
			rows := make([][]string, len(splits))
			for i, sp := range splits {
				rows[i] = []string{sp.Path, strconv.FormatInt(sp.Size, 10), string(sp.DataFileType)}
			}
			return printRows(cmd, []string{"path", "size", "type"}, rows)
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Partition filter column=value[,value...] (repeatable)")
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	var (
		where   []string
		columns []string
		limit   int64
	)
	cmd := &cobra.Command{
		Use:   "scan <schema.table>",
		Short: "Print the table's rows as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cols, handles, err := a.projection(ctx, args[0], columns)
			if err != nil {
				return err
			}
			splits, err := a.splits(ctx, args[0], where)
			if err != nil {
				return err
			}

			enc := jsonLines(cmd.OutOrStdout())
			var n int64
			for _, sp := range splits {
				done, err := a.eachRow(ctx, sp, handles, func(cur *record.Cursor) (bool, error) {
					row := make(map[string]interface{}, len(cols))
					for i, c := range cols {
						row[c.Label()] = jsonValue(c, cur.Object(i))
					}
					if err := enc.Encode(row); err != nil {
						return false, err
					}
					n++
					return limit > 0 && n >= limit, nil
				})
				if err != nil || done {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Partition filter column=value[,value...] (repeatable)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to print (default: every visible column)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Stop after this many rows (0 means no limit)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		where   []string
		columns []string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "export <schema.table>",
		Short: "Write the table's rows to a Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cols, handles, err := a.projection(ctx, args[0], columns)
			if err != nil {
				return err
			}
			splits, err := a.splits(ctx, args[0], where)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()

			pw, err := export.NewParquetWriter(f, cols)
			if err != nil {
				return err
			}
			for _, sp := range splits {
				cur, err := a.conn.Records.GetRecordSet(ctx, connector.SplitHandle{Split: sp}, handles)
				if err != nil {
					return err
				}
				err = pw.Write(ctx, cur)
				cur.Close()
				if err != nil {
					return err
				}
			}
			if err := pw.Close(); err != nil {
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", out, err)
			}

			a.logger.Info("exported table", "table", args[0], "splits", len(splits), "rows", pw.Rows(), "path", out)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows from %d objects to %s\n", pw.Rows(), len(splits), out)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Partition filter column=value[,value...] (repeatable)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to export (default: every visible column)")
	cmd.Flags().StringVar(&out, "out", "", "Parquet file to write")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve tables over the Postgres wire protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := proxy.NewServer(a.cfg, a.conn, a.logger.With("component", "proxy"))
			if err != nil {
				return err
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error { return srv.Start(ctx) })
			if port := a.cfg.Metrics.Port; port > 0 {
				eg.Go(func() error {
					return metrics.Serve(ctx, fmt.Sprintf(":%d", port), a.logger.With("component", "metrics"))
				})
			}
			err = eg.Wait()
			a.logger.Info("shutting down")
			return err
		},
	}
}

func (a *app) tableHandle(ctx context.Context, arg string) (connector.TableHandle, error) {
	schemaName, table, err := parseTableName(arg)
	if err != nil {
		return connector.TableHandle{}, err
	}
	return a.conn.Metadata.GetTableHandle(ctx, schemaName, table)
}

// projection resolves the named columns, or every visible column when
// names is empty.
func (a *app) projection(ctx context.Context, arg string, names []string) ([]schema.Column, []connector.ColumnHandle, error) {
	h, err := a.tableHandle(ctx, arg)
	if err != nil {
		return nil, nil, err
	}
	handles, err := a.conn.Metadata.GetColumnHandles(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	all := make([]schema.Column, len(handles))
	for i, ch := range handles {
		all[i] = ch.Column
	}

	var picked []connector.ColumnHandle
	if len(names) == 0 {
		for _, ch := range handles {
			if !ch.Column.Hidden {
				picked = append(picked, ch)
			}
		}
	}
	for _, name := range names {
		i := schema.Index(all, name)
		if i < 0 {
			return nil, nil, fmt.Errorf("table %s has no column %q", arg, name)
		}
		picked = append(picked, handles[i])
	}

	cols := make([]schema.Column, len(picked))
	for i, ch := range picked {
		cols[i] = ch.Column
	}
	return cols, picked, nil
}

func (a *app) splits(ctx context.Context, arg string, where []string) ([]split.Split, error) {
	h, err := a.tableHandle(ctx, arg)
	if err != nil {
		return nil, err
	}
	constraint, err := parseWhere(where)
	if err != nil {
		return nil, err
	}
	src, err := a.conn.Splits.GetSplits(ctx, h, constraint)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return split.Collect(ctx, src, a.cfg.Split.Prefetch)
}

// eachRow calls fn for every row of sp until fn reports done.
func (a *app) eachRow(ctx context.Context, sp split.Split, handles []connector.ColumnHandle, fn func(*record.Cursor) (bool, error)) (bool, error) {
	cur, err := a.conn.Records.GetRecordSet(ctx, connector.SplitHandle{Split: sp}, handles)
	if err != nil {
		return false, err
	}
	defer cur.Close()

	for cur.Next() {
		done, err := fn(cur)
		if err != nil || done {
			return done, err
		}
	}
	return false, cur.Err()
}
