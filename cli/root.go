// Package cli implements the lakeview command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lakeview/config"
	"lakeview/connector"
	"lakeview/storage"
)

var (
	version = "dev"
	commit  = "none"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg    *config.Config
	store  storage.Storage
	conn   *connector.Connector
	logger *slog.Logger
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd(nil)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd builds the command tree. open, when set, replaces loading
// the store from the configuration.
func newRootCmd(open func(context.Context, config.StoreConfig) (storage.Storage, error)) *cobra.Command {
	if open == nil {
		open = storage.Open
	}
	var (
		configPath string
		output     string
		a          = &app{}
	)

	rootCmd := &cobra.Command{
		Use:           "lakeview",
		Short:         "Query JSON and CSV objects in a bucket as tables",
		Long:          "Browse, scan and export schema-on-read tables declared by per-schema manifests in an object store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := parseOutputFormat(output); err != nil {
				return err
			}
			if cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), cfg)

			a.store, err = open(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", cfg.Store.Kind, err)
			}
			a.conn, err = connector.New(a.store, cfg, a.logger)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lakeview.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	rootCmd.AddCommand(
		newTablesCmd(a),
		newColumnsCmd(a),
		newSplitsCmd(a),
		newScanCmd(a),
		newExportCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputOf(cmd) == formatJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": version, "commit": commit})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lakeview version %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
