package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakeview/config"
	"lakeview/storage"
	"lakeview/storage/storagetest"
)

const testManifest = `[
  {
    "name": "access",
    "rootPath": "access",
    "dataFileType": "ndjson",
    "partitionDefinition": {
      "directoryFilterRegex": "^/web/access/(\\d{4})/.*$",
      "directoryFilterPartitions": ["year"]
    }
  }
]`

// writeLake lays out a local store and returns the path of its config file.
func writeLake(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"web/_tables.json":        testManifest,
		"web/access/2016/a.json":  `{"status":200,"path":"/"}` + "\n",
		"web/access/2017/a.json":  `{"status":404,"path":"/x"}` + "\n" + `{"status":500,"path":"/y"}` + "\n",
		"web/access/2017/notes.md": "not data",
	}
	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	}

	cfgPath := filepath.Join(t.TempDir(), "lakeview.yaml")
	cfg := "store:\n  kind: local\n  root: " + root + "\nschemas:\n  web: /web\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(nil)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTablesAndColumns(t *testing.T) {
	cfg := writeLake(t)

	out, err := runCLI(t, "--config", cfg, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "SCHEMA")
	assert.Contains(t, out, "access")

	out, err = runCLI(t, "--config", cfg, "-o", "json", "columns", "web.access")
	require.NoError(t, err)
	var cols []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &cols))
	require.Len(t, cols, 2)
	assert.Equal(t, "status", cols[0]["column"])
	assert.Equal(t, "integer", cols[0]["type"])
}

func TestSplits_Where(t *testing.T) {
	cfg := writeLake(t)

	out, err := runCLI(t, "--config", cfg, "splits", "web.access", "--where", "year=2017")
	require.NoError(t, err)
	assert.Contains(t, out, "/web/access/2017/a.json")
	assert.NotContains(t, out, "2016")
	assert.NotContains(t, out, "notes.md")
}

func TestScan(t *testing.T) {
	cfg := writeLake(t)

	out, err := runCLI(t, "--config", cfg, "scan", "web.access", "--where", "year=2017", "--columns", "path")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{`{"path":"/x"}`, `{"path":"/y"}`}, lines)

	out, err = runCLI(t, "--config", cfg, "scan", "web.access", "--limit", "1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)

	_, err = runCLI(t, "--config", cfg, "scan", "web.access", "--columns", "nope")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	cfg := writeLake(t)
	dest := filepath.Join(t.TempDir(), "access.parquet")

	out, err := runCLI(t, "--config", cfg, "export", "web.access", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 rows from 2 objects")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.NumRows())
}

func TestInjectedStore(t *testing.T) {
	mem := storagetest.NewMemory()
	mem.PutString("/web/_tables.json", testManifest)
	mem.PutString("/web/access/2020/a.json", `{"n":1}`)

	cfgPath := filepath.Join(t.TempDir(), "lakeview.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store: {kind: local, root: /nonexistent}\nschemas: {web: /web}\n"), 0o644))

	cmd := newRootCmd(func(context.Context, config.StoreConfig) (storage.Storage, error) { return mem, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "scan", "web.access"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, `{"n":1}`, strings.TrimSpace(out.String()))
}

func TestArgumentErrors(t *testing.T) {
	cfg := writeLake(t)

	_, err := runCLI(t, "--config", cfg, "columns", "access")
	assert.ErrorContains(t, err, "schema.table")

	_, err = runCLI(t, "--config", cfg, "splits", "web.access", "--where", "year")
	assert.ErrorContains(t, err, "--where")

	_, err = runCLI(t, "--config", cfg, "-o", "yaml", "tables")
	assert.ErrorContains(t, err, "unknown output format")

	_, err = runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "tables")
	assert.Error(t, err)
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]outputFormat{"": formatTable, "table": formatTable, "JSON": formatJSON} {
		got, err := parseOutputFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseOutputFormat("csv")
	assert.ErrorContains(t, err, `unknown output format "csv"`)
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lakeview version dev")

	out, err = runCLI(t, "-o", "json", "version")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])
}
