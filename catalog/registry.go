package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lakeview/config"
	"lakeview/lakeerr"
	"lakeview/metrics"
	"lakeview/storage"
)

// Registry loads and caches the table manifest of each schema.
type Registry struct {
	store        storage.Storage
	schemas      map[string]string // schema name -> root path
	manifestName string
	ttl          time.Duration
	now          func() time.Time
	logger       *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*snapshot
}

// snapshot is never mutated after it is stored; a reload swaps in a new one.
type snapshot struct {
	tables   map[string]*LogicalTable
	loadedAt time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(store storage.Storage, cfg *config.Config, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	schemas := make(map[string]string, len(cfg.Schemas))
	for name, root := range cfg.Schemas {
		schemas[name] = storage.Clean(root)
	}
	r := &Registry{
		store:        store,
		schemas:      schemas,
		manifestName: cfg.Catalog.ManifestName,
		ttl:          cfg.Catalog.CacheTTL,
		now:          time.Now,
		logger:       logger,
		cache:        make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListSchemas returns the configured schema names, sorted.
func (r *Registry) ListSchemas() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ManifestPath returns the manifest object path for schemaName.
func (r *Registry) ManifestPath(schemaName string) (string, bool) {
	root, ok := r.schemas[schemaName]
	if !ok {
		return "", false
	}
	return storage.Join(root, r.manifestName), true
}

// ManifestName is the base name of every schema's manifest object.
func (r *Registry) ManifestName() string {
	return r.manifestName
}

// GetTable returns the named table of schemaName.
func (r *Registry) GetTable(ctx context.Context, schemaName, name string) (*LogicalTable, error) {
	snap, err := r.current(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	t, ok := snap.tables[name]
	if !ok {
		return nil, lakeerr.ErrTableNotFound(schemaName, name, "not declared in the schema manifest")
	}
	return t, nil
}

// ListTables returns every table of schemaName sorted by table name.
func (r *Registry) ListTables(ctx context.Context, schemaName string) ([]TableName, error) {
	snap, err := r.current(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	names := make([]TableName, 0, len(snap.tables))
	for name := range snap.tables {
		names = append(names, TableName{Schema: schemaName, Table: name})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Table < names[j].Table })
	return names, nil
}

// Invalidate drops the cached manifest of schemaName.
func (r *Registry) Invalidate(schemaName string) {
	r.mu.Lock()
	delete(r.cache, schemaName)
	r.mu.Unlock()
}

func (r *Registry) fresh(schemaName string) (*snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.cache[schemaName]
	if !ok || r.now().Sub(snap.loadedAt) >= r.ttl {
		return nil, false
	}
	return snap, true
}

// current returns the cached table set, loading it on a miss. Concurrent
// misses for the same schema share one load.
func (r *Registry) current(ctx context.Context, schemaName string) (*snapshot, error) {
	if snap, ok := r.fresh(schemaName); ok {
		return snap, nil
	}

	v, err, _ := r.group.Do(schemaName, func() (interface{}, error) {
		if snap, ok := r.fresh(schemaName); ok {
			return snap, nil
		}
		// The load is shared, so one caller's cancellation must not fail the rest.
		tables, err := r.load(context.WithoutCancel(ctx), schemaName)
		metrics.ManifestLoads.WithLabelValues(schemaName, metrics.Status(err)).Inc()
		if err != nil {
			return nil, err
		}
		snap := &snapshot{tables: tables, loadedAt: r.now()}

		r.mu.Lock()
		r.cache[schemaName] = snap
		r.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func (r *Registry) load(ctx context.Context, schemaName string) (map[string]*LogicalTable, error) {
	root, ok := r.schemas[schemaName]
	if !ok {
		return nil, lakeerr.ErrSchemaNotFound(schemaName,
			"no root path is configured for it; add it under \"schemas\" in the configuration")
	}
	manifestPath := storage.Join(root, r.manifestName)

	rc, err := r.store.Read(ctx, manifestPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, lakeerr.ErrSchemaNotFound(schemaName,
				fmt.Sprintf("create %s declaring the schema's tables", manifestPath))
		}
		return nil, lakeerr.ErrIO(manifestPath, 0, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, lakeerr.ErrIO(manifestPath, 0, err)
	}

	tables, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("loading manifest %s: %w", manifestPath, err)
	}
	for name, t := range tables {
		if !strings.HasPrefix(t.RootPath, storage.Separator) {
			resolved := *t
			resolved.RootPath = storage.Join(root, t.RootPath)
			tables[name] = &resolved
		}
	}

	r.logger.Debug("loaded schema manifest", "schema", schemaName, "path", manifestPath, "tables", len(tables))
	return tables, nil
}
