// Package split turns a logical table and a partition constraint into a
// lazily listed stream of splits, one per qualifying object.
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lakeview/catalog"
	"lakeview/config"
	"lakeview/lakeerr"
	"lakeview/metrics"
	"lakeview/partition"
	"lakeview/storage"
)

// ErrClosed is returned by NextBatch after Close.
var ErrClosed = errors.New("split source closed")

// Split is one unit of scan work: exactly one object. The predicates that
// admitted it are kept for provenance and are not re-evaluated on read.
type Split struct {
	ID           uuid.UUID
	Schema       string
	Table        string
	Path         string
	Size         int64
	DataFileType catalog.DataFileType

	// Partitions holds the partition values captured from the object's
	// directories as they were descended and from its own path.
	Partitions map[string]string

	DirectoryPredicate *partition.Predicate
	FilePredicate      *partition.Predicate
}

// Generator lists table objects, pruning directories by partition.
type Generator struct {
	store    storage.Storage
	manifest string
	prefetch int
	policy   partition.Policy
	logger   *slog.Logger
}

func NewGenerator(store storage.Storage, cfg *config.Config, logger *slog.Logger) (*Generator, error) {
	policy, err := partition.ParsePolicy(cfg.Partition.NonMatchPolicy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Split.Prefetch
	if prefetch <= 0 {
		prefetch = config.DefaultPrefetch
	}
	return &Generator{
		store:    store,
		manifest: cfg.Catalog.ManifestName,
		prefetch: prefetch,
		policy:   policy,
		logger:   logger,
	}, nil
}

// Predicates compiles the directory and file predicates of table under
// constraint. Either may be nil when the table declares no such regex.
func (g *Generator) Predicates(table *catalog.LogicalTable, constraint partition.Constraint) (dir, file *partition.Predicate, err error) {
	def := table.PartitionDefinition
	if def == nil {
		return nil, nil, nil
	}
	if def.DirectoryFilterRegex != "" {
		re, err := regexp.Compile(def.DirectoryFilterRegex)
		if err != nil {
			return nil, nil, lakeerr.ErrIllegalArgument("directoryFilterRegex", def.DirectoryFilterRegex, "%v", err)
		}
		dir = partition.NewPredicate(table.Name, re, def.DirectoryFilterPartitions, constraint, partition.Retain)
	}
	if def.FilterRegex != "" {
		re, err := regexp.Compile(def.FilterRegex)
		if err != nil {
			return nil, nil, lakeerr.ErrIllegalArgument("filterRegex", def.FilterRegex, "%v", err)
		}
		file = partition.NewPredicate(table.Name, re, def.FilterPartitions, constraint, g.policy)
	}
	return dir, file, nil
}

// Start begins listing table in the background and returns the source the
// splits are pulled from. The caller must Close the source.
func (g *Generator) Start(ctx context.Context, schemaName string, table *catalog.LogicalTable, constraint partition.Constraint) (*Source, error) {
	dirPred, filePred, err := g.Predicates(table, constraint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	s := &Source{
		ch:     make(chan Split, g.prefetch),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w := &walker{
		gen:      g,
		schema:   schemaName,
		table:    table,
		dirPred:  dirPred,
		filePred: filePred,
		out:      s.ch,
	}
	eg.Go(func() error {
		return w.walk(ctx, storage.Clean(table.RootPath), nil)
	})

	go func() {
		defer close(s.done)
		err := eg.Wait()
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		// Only Close ends a listing cleanly; any other cancellation
		// leaves the split list incomplete.
		if err != nil && !(closed && errors.Is(err, context.Canceled)) {
			s.err = err
		}
		metrics.SplitWalk.WithLabelValues("listed").Add(float64(w.listed))
		metrics.SplitWalk.WithLabelValues("pruned").Add(float64(w.pruned))
		metrics.SplitWalk.WithLabelValues("emitted").Add(float64(w.emitted))
		g.logger.Debug("split listing finished",
			"schema", schemaName, "table", table.Name, "constraint", constraint.String(),
			"listed", w.listed, "pruned", w.pruned, "emitted", w.emitted, "error", err)
		close(s.ch)
	}()

	return s, nil
}

type walker struct {
	gen      *Generator
	schema   string
	table    *catalog.LogicalTable
	dirPred  *partition.Predicate
	filePred *partition.Predicate
	out      chan<- Split

	listed, pruned, emitted int
}

// walk streams dir's listing and descends into surviving subdirectories as
// they are seen. A pruned directory is never listed. captured carries the
// partition values of the directories above dir.
func (w *walker) walk(ctx context.Context, dir string, captured map[string]string) error {
	w.listed++
	for info, err := range w.gen.store.List(ctx, dir) {
		if err != nil {
			return lakeerr.ErrIO(dir, 0, err)
		}

		if info.IsDir {
			ok, err := w.dirPred.Test(info.Path, true)
			if err != nil {
				return err
			}
			if !ok {
				w.pruned++
				continue
			}
			if err := w.walk(ctx, info.Path, withValues(captured, w.dirPred.Extract(info.Path, true))); err != nil {
				return err
			}
			continue
		}

		if !storage.IsDescendant(w.table.RootPath, info.Path) {
			return fmt.Errorf("store listed %s outside table root %s", info.Path, w.table.RootPath)
		}
		if storage.Base(info.Path) == w.gen.manifest {
			continue
		}
		if !w.table.DataFileType.Supports(info.Path, info.ContentType) {
			continue
		}
		ok, err := w.filePred.Test(info.Path, false)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		sp := Split{
			ID:                 uuid.New(),
			Schema:             w.schema,
			Table:              w.table.Name,
			Path:               info.Path,
			Size:               info.Size,
			DataFileType:       w.table.DataFileType,
			Partitions:         w.partitions(info.Path, captured),
			DirectoryPredicate: w.dirPred,
			FilePredicate:      w.filePred,
		}
		select {
		case w.out <- sp:
			w.emitted++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// partitions merges the values for an object at path. Directory captures
// win over a directory regex that also happens to match the full path, and
// the file regex wins over both.
func (w *walker) partitions(path string, captured map[string]string) map[string]string {
	values := withValues(w.dirPred.Extract(path, false), captured)
	values = withValues(values, w.filePred.Extract(path, false))
	if len(values) == 0 {
		return nil
	}
	return values
}

// withValues returns a copy of base overlaid with extra. base is never
// modified, since sibling directories share it.
func withValues(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Source hands out splits in batches while listing continues in the
// background. It is safe for one consumer goroutine.
type Source struct {
	ch     chan Split
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu       sync.Mutex
	finished bool
	closed   bool
}

// NextBatch waits for at least one split (or the end of the listing) and
// returns up to max splits without waiting for more. An empty batch with a
// nil error means the listing is complete.
func (s *Source) NextBatch(ctx context.Context, max int) ([]Split, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if max <= 0 {
		max = 1
	}

	var batch []Split
	select {
	case sp, ok := <-s.ch:
		if !ok {
			return nil, s.finish()
		}
		batch = append(batch, sp)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(batch) < max {
		select {
		case sp, ok := <-s.ch:
			if !ok {
				return batch, s.finish()
			}
			batch = append(batch, sp)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (s *Source) finish() error {
	<-s.done
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	return s.err
}

// Finished reports whether every split has been handed out.
func (s *Source) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Close stops the listing and waits for it to exit. It is idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

// Collect drains src into a slice.
func Collect(ctx context.Context, src *Source, batchSize int) ([]Split, error) {
	var out []Split
	for !src.Finished() {
		batch, err := src.NextBatch(ctx, batchSize)
		if err != nil {
			return out, err
		}
		out = append(out, batch...)
	}
	return out, nil
}
