package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  kind: local
  root: /tmp/lake
schemas:
  web: /logs/web
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultManifestName, cfg.Catalog.ManifestName)
	assert.Equal(t, time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, int64(DefaultSampleBytes), cfg.Schema.SampleBytes)
	assert.Equal(t, DefaultPrefetch, cfg.Split.Prefetch)
	assert.Equal(t, NonMatchRetain, cfg.Partition.NonMatchPolicy)
	assert.Equal(t, DefaultProxyPort, cfg.Proxy.Port)
	assert.Zero(t, cfg.Metrics.Port)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestParse_ExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  kind: s3
  bucket: lake
  region: eu-central-1
  usePathStyle: true
schemas:
  metrics: /metrics
catalog:
  cacheTTL: 30s
partition:
  nonMatchPolicy: reject
metrics:
  port: 9464
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "lake", cfg.Store.Bucket)
	assert.True(t, cfg.Store.UsePathStyle)
	assert.Equal(t, 30*time.Second, cfg.Catalog.CacheTTL)
	assert.Equal(t, NonMatchReject, cfg.Partition.NonMatchPolicy)
	assert.Equal(t, 9464, cfg.Metrics.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestParse_MinIO(t *testing.T) {
	cfg, err := Parse([]byte(`
store: {kind: minio, bucket: lake, endpoint: "localhost:9000", useSSL: true, accessKeyID: minio}
schemas: {web: /web}
`))
	require.NoError(t, err)
	assert.Equal(t, StoreMinIO, cfg.Store.Kind)
	assert.Equal(t, "localhost:9000", cfg.Store.Endpoint)
	assert.True(t, cfg.Store.UseSSL)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("LAKEVIEW_LOG_LEVEL", "warn")
	t.Setenv("LAKEVIEW_S3_SECRET_ACCESS_KEY", "from-env")

	cfg, err := Parse([]byte(`
store: {kind: s3, bucket: lake, secretAccessKey: from-file}
schemas: {web: /web}
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Store.SecretAccessKey)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown store", "store: {kind: ftp}\nschemas: {a: /a}"},
		{"s3 without bucket", "store: {kind: s3}\nschemas: {a: /a}"},
		{"azure without account", "store: {kind: azure, bucket: c}\nschemas: {a: /a}"},
		{"minio without endpoint", "store: {kind: minio, bucket: lake}\nschemas: {a: /a}"},
		{"no schemas", "store: {kind: local, root: /tmp}"},
		{"relative schema root", "store: {kind: local, root: /tmp}\nschemas: {a: a}"},
		{"bad policy", "store: {kind: local, root: /tmp}\nschemas: {a: /a}\npartition: {nonMatchPolicy: maybe}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lakeview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: {kind: local, root: /srv}\nschemas: {a: /a}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv", cfg.Store.Root)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
