// Package datalayer is the document store: it indexes content paths per
// collection, reads and parses documents, and writes them back through a
// pluggable bridge.
package datalayer

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/fulmenhq/contentaudit/pkg/safeio"
	"github.com/fulmenhq/contentaudit/pkg/schema"
	"golang.org/x/sync/errgroup"
)

// syncConcurrency bounds how many collection directories are walked at once.
const syncConcurrency = 4

// Document is a parsed stored document.
type Document struct {
	Path         string
	RelativePath string
	Extension    string
	Template     string
	Collection   *schema.Collection
	Values       map[string]interface{}
}

// SyncStats summarizes an index sync.
type SyncStats struct {
	Collections int
	Indexed     int
	Added       int
	Removed     int
}

// Database joins a schema, an index, and a bridge.
type Database struct {
	bridge Bridge
	index  *Index
	schema *schema.Schema
}

// NewDatabase builds a document store.
func NewDatabase(bridge Bridge, index *Index, s *schema.Schema) *Database {
	return &Database{bridge: bridge, index: index, schema: s}
}

// GetSchema returns the loaded collection schema.
func (d *Database) GetSchema(_ context.Context) (*schema.Schema, error) {
	if d.schema == nil {
		return nil, errors.New("no content schema loaded")
	}
	return d.schema, nil
}

// Bridge exposes the underlying bridge.
func (d *Database) Bridge() Bridge {
	return d.bridge
}

// Close releases the index.
func (d *Database) Close() error {
	if d.index == nil {
		return nil
	}
	return d.index.Close()
}

// Sync walks every collection directory and reconciles the index with what is
// on disk. Directory walks run concurrently; index writes are sequential.
func (d *Database) Sync(ctx context.Context) (*SyncStats, error) {
	s, err := d.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	collections := s.GetCollections()
	discovered := make([][]string, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for i, c := range collections {
		g.Go(func() error {
			paths, err := d.bridge.Glob(gctx, c.Path)
			if err != nil {
				return errors.Wrapf(err, "discover collection %s", c.Name)
			}
			kept := paths[:0]
			for _, p := range paths {
				owner, ok := s.CollectionForPath(p)
				if !ok || owner != c || !c.Matches(c.RelativePath(p)) {
					continue
				}
				kept = append(kept, p)
			}
			discovered[i] = kept
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &SyncStats{Collections: len(collections)}
	now := time.Now()
	for i, c := range collections {
		existing, err := d.index.Paths(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(existing))
		for _, p := range existing {
			known[p] = true
		}
		for _, p := range discovered[i] {
			if !known[p] {
				stats.Added++
			}
			delete(known, p)
			if err := d.index.Upsert(ctx, IndexEntry{Path: p, Collection: c.Name, Extension: path.Ext(p), IndexedAt: now}); err != nil {
				return nil, err
			}
			stats.Indexed++
		}
		for p := range known {
			if err := d.index.Delete(ctx, p); err != nil {
				return nil, err
			}
			stats.Removed++
		}
		logger.Debug("Indexed collection",
			logger.String("collection", c.Name),
			logger.Int("documents", len(discovered[i])))
	}
	return stats, nil
}

// ListPaths lists indexed paths for a declared collection.
func (d *Database) ListPaths(ctx context.Context, args QueryArgs) ([]string, error) {
	s, err := d.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetCollection(args.Collection); err != nil {
		return nil, err
	}
	return d.index.ListPaths(ctx, args)
}

// Exists reports whether a document is still present on the bridge.
func (d *Database) Exists(ctx context.Context, p string) (bool, error) {
	return d.bridge.Exists(ctx, p)
}

// Get reads and parses the document at p. The parser is chosen from the
// file's extension, falling back to the collection format.
func (d *Database) Get(ctx context.Context, p string) (*Document, error) {
	s, err := d.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	coll, ok := s.CollectionForPath(p)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s belongs to no collection", p)
	}
	data, err := d.bridge.Get(ctx, p)
	if err != nil {
		return nil, err
	}

	format := formatFor(coll, p)
	values, err := Decode(format, data, "")
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", p)
	}
	template, _ := values["_template"].(string)
	if body := coll.BodyField(template); body != "" && format.IsMarkdown() {
		values[body] = values[BodyKey]
		delete(values, BodyKey)
	}

	return &Document{
		Path:         p,
		RelativePath: coll.RelativePath(p),
		Extension:    path.Ext(p),
		Template:     template,
		Collection:   coll,
		Values:       values,
	}, nil
}

// Put serializes values and writes them to the collection-relative path,
// then refreshes the index entry. A bridge that discards writes leaves the
// index untouched.
func (d *Database) Put(ctx context.Context, coll *schema.Collection, relativePath string, values map[string]interface{}) error {
	clean, err := safeio.CleanUserPath(coll.DocumentPath(relativePath))
	if err != nil {
		return errors.Wrapf(err, "put %s", relativePath)
	}
	p := strings.TrimPrefix(clean, "./")
	if !strings.HasPrefix(p, coll.Path+"/") {
		return errors.Wrapf(safeio.ErrOutsideBase, "put %s outside collection %s", relativePath, coll.Name)
	}

	template, _ := values["_template"].(string)
	data, err := Encode(formatFor(coll, p), values, coll.BodyField(template))
	if err != nil {
		return errors.Wrapf(err, "serialize %s", p)
	}
	if err := d.bridge.Put(ctx, p, data); err != nil {
		return err
	}
	if wd, ok := d.bridge.(writeDiscarder); ok && wd.DiscardsWrites() {
		return nil
	}
	return d.index.Upsert(ctx, IndexEntry{Path: p, Collection: coll.Name, Extension: path.Ext(p)})
}

func formatFor(coll *schema.Collection, p string) schema.Format {
	if f, ok := schema.FormatForExtension(path.Ext(p)); ok {
		return f
	}
	if coll.Format == "" {
		return schema.FormatMarkdown
	}
	return coll.Format
}
